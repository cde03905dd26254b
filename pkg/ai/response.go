package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/saint0x/ggchangelog/pkg/changelog"
)

// ErrSchema means the model answered with JSON that does not match the
// expected shape.
var ErrSchema = errors.New("model output does not match schema")

var fencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// CleanResponse strips Markdown code fences and any prose around the
// outermost JSON object.
func CleanResponse(s string) string {
	s = fencePattern.ReplaceAllString(s, "$1")
	s = strings.TrimSpace(s)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

type classifyResponse struct {
	APIChanges []changelog.ClassifiedChange `json:"apiChanges" validate:"dive"`
}

type formatEntry struct {
	Title          string     `json:"title" validate:"required"`
	Description    string     `json:"description"`
	ActionRequired string     `json:"actionRequired"`
	MergedAt       *time.Time `json:"mergedAt,omitempty"`
	PRNumber       int        `json:"prNumber,omitempty"`
	Files          []string   `json:"files,omitempty"`
}

type formatSection struct {
	Type    string        `json:"type" validate:"required"`
	Changes []formatEntry `json:"changes" validate:"dive"`
}

type formatResponse struct {
	Sections []formatSection `json:"sections" validate:"dive"`
}

// decode repairs, parses and validates a model answer into out.
func decode(validate *validator.Validate, raw string, out interface{}) error {
	cleaned := CleanResponse(raw)
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if err := validate.Struct(out); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return nil
}
