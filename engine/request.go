package engine

import (
	"fmt"
	"strings"

	"github.com/smallnest/hybridrag"
)

// Message is one turn of the conversation driving a request.
type Message struct {
	Role    string `json:"role"` // "user", "assistant" or "system"
	Content string `json:"content"`
}

// Request is a retrieval request over a conversation.
type Request struct {
	Messages []Message `json:"messages"`
	Mode     Mode      `json:"mode"`
}

// Validate checks the request before any side effect.
func (r *Request) Validate() error {
	if len(r.Messages) == 0 {
		return fmt.Errorf("request has no messages: %w", hybridrag.ErrInvalidRequest)
	}
	if _, ok := capabilities[r.Mode]; !ok {
		return fmt.Errorf("unknown mode %q: %w", r.Mode, hybridrag.ErrInvalidRequest)
	}
	if r.LatestUserMessage() == "" {
		return fmt.Errorf("request has no user message: %w", hybridrag.ErrInvalidRequest)
	}
	return nil
}

// LatestUserMessage returns the content of the most recent user turn.
func (r *Request) LatestUserMessage() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == "user" {
			return strings.TrimSpace(r.Messages[i].Content)
		}
	}
	return ""
}

// State tracks a request through its lifecycle.
type State string

const (
	StateReceived   State = "received"
	StateValidated  State = "validated"
	StateExecuting  State = "executing"
	StateAssembling State = "assembling"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Provenance source names.
const (
	SourceVectorIndex   = "vector_index"
	SourceGraphStore    = "graph_store"
	SourceTraversal     = "traversal"
	SourceDocumentStore = "document_store"
)

// Provenance records where one surfaced fact came from. A step that
// found nothing still produces an entry, so "no result" is citable.
type Provenance struct {
	Operation Operation      `json:"operation"`
	Source    string         `json:"source"`
	Inputs    map[string]any `json:"inputs,omitempty"`
	Outputs   []string       `json:"outputs,omitempty"`
	Degraded  bool           `json:"degraded,omitempty"`
}

// StepError is one failed step. The failure is isolated; the rest of
// the plan still runs.
type StepError struct {
	Operation Operation `json:"operation"`
	Input     string    `json:"input,omitempty"`
	Err       error     `json:"-"`
	Message   string    `json:"error"`
}

func (e StepError) Error() string {
	return fmt.Sprintf("step %s: %s", e.Operation, e.Message)
}

// Unwrap exposes the underlying error to errors.Is.
func (e StepError) Unwrap() error {
	return e.Err
}

// Response is the assembled result of a request.
type Response struct {
	Answer      string       `json:"answer"`
	Provenance  []Provenance `json:"provenance"`
	FailedSteps []StepError  `json:"failed_steps,omitempty"`
	Partial     bool         `json:"partial,omitempty"`
	State       State        `json:"state"`
}
