package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrEmptyResponse = errors.New("empty model response")

type TextRequest struct {
	Prompt    string
	MaxTokens int
}

// ObjectRequest asks for a JSON object shaped by Schema, a JSON-Schema-like
// description.
type ObjectRequest struct {
	Prompt string
	Schema map[string]interface{}
}

type Generator interface {
	GenerateText(ctx context.Context, req TextRequest) (string, error)
	GenerateObject(ctx context.Context, req ObjectRequest) (json.RawMessage, error)
}

func schemaInstruction(schema map[string]interface{}) (string, error) {
	raw, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal schema failed: %w", err)
	}
	return "Respond with a single JSON object only, no prose and no code fences. " +
		"The object must match this JSON schema:\n" + string(raw), nil
}

// cleanJSON strips markdown fences some models wrap around JSON and checks
// the remainder parses.
func cleanJSON(text string) (json.RawMessage, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}
	if text == "" {
		return nil, ErrEmptyResponse
	}
	if !json.Valid([]byte(text)) {
		return nil, fmt.Errorf("model returned invalid json")
	}
	return json.RawMessage(text), nil
}
