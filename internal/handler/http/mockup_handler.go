package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/prompt-shirt/internal/mockup"
	"github.com/vasiliy-maslov/prompt-shirt/internal/moderation"
)

type GenerateMockupRequest struct {
	Color  string `json:"color"`
	Prompt string `json:"prompt"`
}

type ModerationCheckRequest struct {
	Prompt string `json:"prompt" validate:"required"`
}

type MockupHandler struct {
	generator mockup.Generator
	filter    *moderation.Filter
	validate  *validator.Validate
}

func NewMockupHandler(generator mockup.Generator, filter *moderation.Filter) *MockupHandler {
	if filter == nil {
		filter = moderation.Default()
	}
	return &MockupHandler{
		generator: generator,
		filter:    filter,
		validate:  newValidator(),
	}
}

func (h *MockupHandler) RegisterRoutes(router chi.Router) {
	router.Post("/generate-mockup", h.handleGenerateMockup)
	router.Post("/moderation/check", h.handleModerationCheck)
}

func (h *MockupHandler) handleGenerateMockup(w http.ResponseWriter, r *http.Request) {
	var requestPayload GenerateMockupRequest
	if err := json.NewDecoder(r.Body).Decode(&requestPayload); err != nil {
		log.Warn().Err(err).Msg("Failed to decode mockup request body")
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	result, err := h.generator.Generate(r.Context(), mockup.Request{
		Color:  requestPayload.Color,
		Prompt: requestPayload.Prompt,
	})
	if err != nil {
		if errors.Is(err, mockup.ErrUnknownColor) {
			respondWithError(w, mapErrorToStatusCode(err), "Invalid color specified")
			return
		}
		log.Error().Err(err).Msg("Failed to generate mockup")
		respondWithError(w, http.StatusInternalServerError, "Failed to generate mockup")
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

// handleModerationCheck lets the client pre-validate a prompt. The answer is
// advisory; POST /order runs the same filter again.
func (h *MockupHandler) handleModerationCheck(w http.ResponseWriter, r *http.Request) {
	var requestPayload ModerationCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&requestPayload); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if err := h.validate.Struct(requestPayload); err != nil {
		respondWithValidationErrors(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, h.filter.Classify(requestPayload.Prompt))
}
