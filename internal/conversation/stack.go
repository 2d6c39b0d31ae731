package conversation

import (
	"log/slog"
	"time"

	"github.com/aulaflow/aulaflow/internal/models"
)

const (
	// DefaultMaxDepth is the stack depth used when the config does not
	// override it.
	DefaultMaxDepth = 5

	// InsertPriority is assigned to every freshly pushed level.
	InsertPriority = 0.9

	// DecayFactor rescales every existing level on each push.
	DecayFactor = 0.7

	// MaxInlineRows is the largest result set stored whole on a level.
	// Bigger sets keep only the first MaxInlineRows rows plus the SQL
	// that reproduces the full set (a "regenerable" level).
	MaxInlineRows = 10
)

// Level is one completed turn's summary kept for future reference
// resolution.
type Level struct {
	ID        int                 `json:"id"`
	Query     string              `json:"query"`
	Data      []models.Row        `json:"data"`
	RowCount  int                 `json:"row_count"`
	SQL       string              `json:"sql_executed"`
	Timestamp time.Time           `json:"timestamp"`
	Awaiting  models.AwaitingKind `json:"awaiting"`
	Priority  float64             `json:"priority"`
}

// Regenerable reports whether the level stores a truncated result set that
// must be re-executed through its SQL to recover the full rows.
func (l Level) Regenerable() bool {
	return l.RowCount > len(l.Data)
}

// Stack is the LIFO of turn levels owned by the message processor. Levels
// are never mutated in place; every push produces fresh copies with
// rescaled priorities.
type Stack struct {
	levels   []Level
	maxDepth int
	logger   *slog.Logger
}

// NewStack creates an empty stack. A maxDepth of zero or less falls back to
// DefaultMaxDepth.
func NewStack(maxDepth int, logger *slog.Logger) *Stack {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Stack{maxDepth: maxDepth, logger: logger}
}

// Push inserts a new level on top. The new level gets InsertPriority, every
// existing level decays by DecayFactor, and the oldest level is evicted when
// the stack would exceed its depth. Result sets larger than MaxInlineRows
// are truncated, keeping the SQL for regeneration.
func (s *Stack) Push(l Level) {
	rescaled := make([]Level, 0, len(s.levels)+1)
	for _, old := range s.levels {
		old.Priority *= DecayFactor
		rescaled = append(rescaled, old)
	}

	l.Priority = InsertPriority
	if l.Timestamp.IsZero() {
		l.Timestamp = time.Now()
	}
	if len(l.Data) > MaxInlineRows {
		l.Data = append([]models.Row(nil), l.Data[:MaxInlineRows]...)
	}
	rescaled = append(rescaled, l)

	for len(rescaled) > s.maxDepth {
		evicted := rescaled[0]
		rescaled = rescaled[1:]
		s.logger.Info("stack level evicted",
			"id", evicted.ID, "priority", evicted.Priority)
	}

	for i := range rescaled {
		rescaled[i].ID = i + 1
	}
	s.levels = rescaled

	s.logger.Info("stack push",
		"id", l.ID, "rows", l.RowCount, "awaiting", string(l.Awaiting),
		"depth", len(s.levels))
}

// ReplaceTop swaps the newest level for a fresh one without decaying the
// rest. Used when a pending confirmation is cancelled and the cancelling
// turn takes its place.
func (s *Stack) ReplaceTop(l Level) {
	if len(s.levels) == 0 {
		s.Push(l)
		return
	}
	l.Priority = InsertPriority
	if l.Timestamp.IsZero() {
		l.Timestamp = time.Now()
	}
	if len(l.Data) > MaxInlineRows {
		l.Data = append([]models.Row(nil), l.Data[:MaxInlineRows]...)
	}
	l.ID = len(s.levels)
	s.levels[len(s.levels)-1] = l
}

// Snapshot returns an immutable copy of the stack, newest level last.
// Callers must treat the rows as read-only.
func (s *Stack) Snapshot() []Level {
	out := make([]Level, len(s.levels))
	copy(out, s.levels)
	return out
}

// Top returns up to n levels, newest first.
func (s *Stack) Top(n int) []Level {
	if n <= 0 || len(s.levels) == 0 {
		return nil
	}
	if n > len(s.levels) {
		n = len(s.levels)
	}
	out := make([]Level, 0, n)
	for i := len(s.levels) - 1; i >= len(s.levels)-n; i-- {
		out = append(out, s.levels[i])
	}
	return out
}

// Len returns the current depth.
func (s *Stack) Len() int {
	return len(s.levels)
}

// Clear drops every level. Invoked when a constancia flow terminates.
func (s *Stack) Clear() {
	s.levels = nil
	s.logger.Info("stack cleared")
}

// NewestWithRows walks a snapshot newest-first and returns the first level
// holding at least one row, or false when none qualifies.
func NewestWithRows(snapshot []Level) (Level, bool) {
	for i := len(snapshot) - 1; i >= 0; i-- {
		if snapshot[i].RowCount > 0 && len(snapshot[i].Data) > 0 {
			return snapshot[i], true
		}
	}
	return Level{}, false
}
