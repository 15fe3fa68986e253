// Package llm adapts large-language-model providers to a single capability:
// run a named task and return a JSON document that matches the task's schema.
package llm

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrEmptyResponse is returned when the provider answers without content.
var ErrEmptyResponse = errors.New("llm: empty response")

// Task is one structured generation request.
type Task struct {
	// Name identifies the task and names the JSON schema sent to the provider.
	Name string
	// Instructions is the system prompt.
	Instructions string
	// Input is marshalled to JSON and sent as the user message.
	Input any
	// Schema is the JSON schema the answer must follow.
	Schema json.RawMessage
}

// Model generates a JSON document for a task.
type Model interface {
	GenerateJSON(ctx context.Context, task Task) (string, error)
}
