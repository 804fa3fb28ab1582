package order

import (
	"strings"
	"time"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusCompleted OrderStatus = "completed"
	StatusFailed    OrderStatus = "failed"
)

func (os OrderStatus) String() string {
	return string(os)
}

type ShirtColor string

const (
	ColorBlack ShirtColor = "black"
	ColorWhite ShirtColor = "white"
)

type ShirtSize string

const (
	SizeS   ShirtSize = "S"
	SizeM   ShirtSize = "M"
	SizeL   ShirtSize = "L"
	SizeXL  ShirtSize = "XL"
	SizeXXL ShirtSize = "XXL"
)

// Prompt length bounds, counted in characters.
const (
	MinPromptLength = 10
	MaxPromptLength = 500
)

type CustomerInfo struct {
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
	Address   string `json:"address" validate:"required"`
	City      string `json:"city" validate:"required"`
	State     string `json:"state" validate:"required"`
	ZipCode   string `json:"zipCode" validate:"required"`
	Country   string `json:"country" validate:"required"`
}

func (c CustomerInfo) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// OrderDraft is what a visitor submits at checkout. It is never stored; the
// Order created after the provider assigns a session id replaces it.
type OrderDraft struct {
	Prompt     string     `validate:"required,min=10,max=500"`
	ShirtColor ShirtColor `validate:"required,oneof=black white"`
	ShirtSize  ShirtSize  `validate:"required,oneof=S M L XL XXL"`
	Customer   CustomerInfo
}

// Order is keyed by the provider's checkout session id.
type Order struct {
	SessionID   string       `json:"sessionId"`
	Prompt      string       `json:"prompt"`
	ShirtColor  ShirtColor   `json:"shirtColor"`
	ShirtSize   ShirtSize    `json:"shirtSize"`
	Customer    CustomerInfo `json:"customer"`
	AmountCents int64        `json:"amountCents"`
	Currency    string       `json:"currency"`
	Status      OrderStatus  `json:"status"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
	CompletedAt *time.Time   `json:"completedAt,omitempty"`
}
