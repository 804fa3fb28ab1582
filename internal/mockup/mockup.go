package mockup

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/vasiliy-maslov/prompt-shirt/internal/layout"
)

var ErrUnknownColor = errors.New("invalid color specified")

const PlaceholderMessage = "Mockup generation endpoint ready. Replace with actual AI integration."

type Request struct {
	Color  string
	Prompt string
}

type Result struct {
	JobID     uuid.UUID `json:"jobId"`
	ImageURL  string    `json:"imageUrl"`
	Prompt    string    `json:"prompt"`
	Message   string    `json:"message"`
	Lines     []string  `json:"lines"`
	LineCount int       `json:"lineCount"`
	TextColor string    `json:"textColor"`
}

// Generator renders a shirt mockup for a prompt.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}

type shirtTemplate struct {
	imageURL    string
	imagePrompt string
	textColor   string
}

var templates = map[string]shirtTemplate{
	"white": {
		imageURL:    "/api/placeholder/white-tshirt",
		imagePrompt: "Hyperrealistic flat white cotton t-shirt on black background, studio lighting, professional product photography, clean and minimalist",
		textColor:   "#1f2937",
	},
	"black": {
		imageURL:    "/api/placeholder/black-tshirt",
		imagePrompt: "Hyperrealistic flat black cotton t-shirt on white background, studio lighting, professional product photography, clean and minimalist",
		textColor:   "#ffffff",
	},
}

// PlaceholderGenerator returns static shirt images until an image model is
// wired in. The print-area layout is computed for real.
type PlaceholderGenerator struct {
	maxWidth int
	maxLines int
}

func NewPlaceholderGenerator(maxWidth, maxLines int) *PlaceholderGenerator {
	if maxWidth <= 0 {
		maxWidth = layout.DefaultMaxWidth
	}
	if maxLines <= 0 {
		maxLines = layout.DefaultMaxLines
	}
	return &PlaceholderGenerator{maxWidth: maxWidth, maxLines: maxLines}
}

func (g *PlaceholderGenerator) Generate(_ context.Context, req Request) (*Result, error) {
	tmpl, ok := templates[strings.ToLower(strings.TrimSpace(req.Color))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownColor, req.Color)
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("mockup: generate job id: %w", err)
	}

	text := layout.Compute(req.Prompt, g.maxWidth, g.maxLines)

	return &Result{
		JobID:     id,
		ImageURL:  tmpl.imageURL,
		Prompt:    tmpl.imagePrompt,
		Message:   PlaceholderMessage,
		Lines:     text.Lines,
		LineCount: text.LineCount,
		TextColor: tmpl.textColor,
	}, nil
}
