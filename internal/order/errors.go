package order

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation         = errors.New("invalid order request")
	ErrContentRejected    = errors.New("prompt contains inappropriate content")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrOrder              = errors.New("failed to create order")

	ErrSignatureInvalid = errors.New("webhook signature invalid")
	ErrMalformedPayload = errors.New("webhook payload malformed")
	ErrUnknownSession   = errors.New("event references unknown checkout session")

	ErrOrderNotFound     = errors.New("order not found")
	ErrDuplicateSession  = errors.New("order with this session id already exists")
	ErrInvalidTransition = errors.New("order status transition not allowed")
)

// ContentRejectedError carries the matched terms for logs. Its message never
// includes them.
type ContentRejectedError struct {
	MatchedTerms []string
}

func (e *ContentRejectedError) Error() string {
	return ErrContentRejected.Error()
}

func (e *ContentRejectedError) Is(target error) bool {
	return target == ErrContentRejected
}

// ValidationError lists the offending draft fields.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(e.Fields, ", "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
