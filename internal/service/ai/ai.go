// Package ai wraps the generative-AI provider behind a single call shape:
// a system and user prompt in, a JSON document out.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type Operation string

const (
	OpGenerateIdeas Operation = "generate_ideas"
	OpWriteDraft    Operation = "write_draft"
	OpAnalyzeStyle  Operation = "analyze_style"
	OpPlagiarism    Operation = "plagiarism_scan"
	OpDataSection   Operation = "data_section"
)

type Request struct {
	Operation Operation
	System    string
	Prompt    string
	// Schema is the JSON schema the answer must follow. Nil asks for any JSON object.
	Schema map[string]any
}

type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

var (
	ErrEmptyResponse = errors.New("empty response from model")
	ErrNotConfigured = errors.New("ai provider is not configured")
)

// Disabled stands in for the provider when no api key is set.
type Disabled struct{}

func (Disabled) Generate(context.Context, Request) (string, error) {
	return "", ErrNotConfigured
}

// Decode strips an optional markdown code fence and decodes raw into out.
// Unknown fields are rejected so a drifting model is noticed early.
func Decode(raw string, out any) error {
	body := strings.TrimSpace(raw)
	if body == "" {
		return ErrEmptyResponse
	}
	if strings.HasPrefix(body, "```") {
		body = strings.TrimPrefix(body, "```json")
		body = strings.TrimPrefix(body, "```")
		body = strings.TrimSuffix(strings.TrimSpace(body), "```")
	}

	dec := json.NewDecoder(strings.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("failed to decode model output: %w", err)
	}
	return nil
}
