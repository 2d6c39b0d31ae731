package agent

import (
	"context"
	"time"

	"github.com/aulaflow/aulaflow/internal/conversation"
	"github.com/aulaflow/aulaflow/internal/models"
)

// TurnContext is the immutable per-turn input threaded through the
// pipeline: the utterance, a snapshot of the conversation stack and the
// optional path of a PDF uploaded in the panel. Specialists never mutate
// the stack; they return a TurnResult and the processor applies it.
type TurnContext struct {
	ID             string
	Utterance      string
	Timestamp      time.Time
	Stack          []conversation.Level
	CurrentPDFPath string
}

// Specialist is the common contract of every delegation target. The master
// dispatches to exactly one specialist per turn.
type Specialist interface {
	Name() string
	Interpret(ctx context.Context, intent *models.Intention, tc *TurnContext) (*models.TurnResult, error)
}

// Reply is the transport-agnostic answer the processor returns to its
// caller.
type Reply struct {
	OK          bool           `json:"ok"`
	UserMessage string         `json:"user_message"`
	Payload     map[string]any `json:"payload,omitempty"`
}
