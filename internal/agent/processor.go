package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aulaflow/aulaflow/internal/conversation"
	"github.com/aulaflow/aulaflow/internal/journal"
	"github.com/aulaflow/aulaflow/internal/models"
)

// affirmations and negations close a pending confirmation without an LLM
// round trip.
var (
	affirmations = []string{"si", "sí", "claro", "confirmo", "confirmar", "dale", "adelante", "ok", "okay", "de acuerdo"}
	negations    = []string{"no", "cancela", "cancelar", "mejor no", "olvidalo", "olvídalo"}
)

// MessageProcessor is the single entry point of the assistant. It owns the
// conversation stack, runs the master pipeline one turn at a time and
// applies the stack and journal side effects of each result.
type MessageProcessor struct {
	master  *MasterInterpreter
	stack   *conversation.Stack
	journal *journal.Journal
	logger  *slog.Logger

	panelPDF   string
	pendingPDF string
}

// NewMessageProcessor wires the processor. journal may be nil; tracing is
// optional.
func NewMessageProcessor(master *MasterInterpreter, stack *conversation.Stack, j *journal.Journal, logger *slog.Logger) *MessageProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &MessageProcessor{master: master, stack: stack, journal: j, logger: logger}
}

// SetPanelPDF registers the path of a PDF uploaded in the panel so a later
// "transforma el PDF" turn can reach it.
func (p *MessageProcessor) SetPanelPDF(path string) {
	p.panelPDF = path
}

// Stack exposes the live stack snapshot, mainly for the REPL status line.
func (p *MessageProcessor) Stack() []conversation.Level {
	return p.stack.Snapshot()
}

// Process runs one turn: utterance in, humanized reply out.
func (p *MessageProcessor) Process(ctx context.Context, utterance string) (*Reply, error) {
	started := time.Now()
	tc := &TurnContext{
		ID:             uuid.NewString(),
		Utterance:      utterance,
		Timestamp:      started,
		Stack:          p.stack.Snapshot(),
		CurrentPDFPath: p.panelPDF,
	}

	// A pending confirmation short-circuits the pipeline: yes and no are
	// resolved right here.
	if reply, handled := p.resolveConfirmation(tc); handled {
		p.record(tc, reply.resultAction, 0, false, "", "", time.Since(started))
		return reply.reply, nil
	}

	result, intent, err := p.master.Interpret(ctx, tc)
	if err != nil {
		return nil, fmt.Errorf("process turn %s: %w", tc.ID, err)
	}

	pushed := p.applyStack(tc, result)

	intention := ""
	if intent != nil {
		intention = string(intent.Type)
	}
	awaiting := ""
	if result.Reflexion != nil && result.Reflexion.EsperaContinuacion {
		awaiting = string(result.Reflexion.TipoEsperado)
	}
	p.record(tc, result.Action, result.RowCount, pushed, intention, awaiting, time.Since(started))

	return &Reply{
		OK:          !result.Failure,
		UserMessage: result.Message,
		Payload:     replyPayload(result),
	}, nil
}

type confirmationOutcome struct {
	reply        *Reply
	resultAction string
}

// resolveConfirmation handles yes/no turns while the stack top awaits a
// confirmation. Confirmed documents clear the whole stack; a cancellation
// replaces the top level so its awaiting state is gone but the student
// data stays referenceable.
func (p *MessageProcessor) resolveConfirmation(tc *TurnContext) (*confirmationOutcome, bool) {
	snapshot := tc.Stack
	if len(snapshot) == 0 {
		return nil, false
	}
	top := snapshot[len(snapshot)-1]
	if top.Awaiting != models.AwaitingConfirmation {
		return nil, false
	}

	lowered := strings.ToLower(strings.TrimSpace(tc.Utterance))
	switch {
	case matchesAny(lowered, affirmations):
		p.stack.Clear()
		p.logger.Info("confirmation accepted", "turn", tc.ID, "pdf", p.pendingPDF)
		message := "Constancia confirmada."
		if p.pendingPDF != "" {
			message = fmt.Sprintf("Constancia confirmada. El documento quedó en %s.", p.pendingPDF)
		}
		p.pendingPDF = ""
		return &confirmationOutcome{
			reply:        &Reply{OK: true, UserMessage: message},
			resultAction: models.ActionConstanciaConfirmed,
		}, true
	case matchesAny(lowered, negations):
		cleared := top
		cleared.Awaiting = models.AwaitingNone
		p.stack.ReplaceTop(cleared)
		p.pendingPDF = ""
		p.logger.Info("confirmation cancelled", "turn", tc.ID)
		return &confirmationOutcome{
			reply:        &Reply{OK: true, UserMessage: "De acuerdo, cancelo el documento. ¿Algo más?"},
			resultAction: models.ActionConstanciaCancelled,
		}, true
	}

	// Any other utterance abandons the confirmation implicitly and flows
	// through the normal pipeline.
	return nil, false
}

// applyStack pushes one level when the student's reflexion asked for it.
// Every push decision is logged, positive or negative.
func (p *MessageProcessor) applyStack(tc *TurnContext, result *models.TurnResult) bool {
	reflexion := result.Reflexion
	if reflexion == nil || !reflexion.EsperaContinuacion {
		p.logger.Info("stack push skipped",
			"turn", tc.ID,
			"action", result.Action,
			"reason", "no continuation expected")
		return false
	}

	data := reflexion.DatosRecordar.Data
	rowCount := reflexion.DatosRecordar.RowCount
	if len(data) == 0 && len(result.Rows) > 0 {
		data = result.Rows
		rowCount = result.RowCount
	}

	p.stack.Push(conversation.Level{
		Query:     tc.Utterance,
		Data:      data,
		RowCount:  rowCount,
		SQL:       result.SQL,
		Timestamp: tc.Timestamp,
		Awaiting:  reflexion.TipoEsperado,
	})
	if result.Action == models.ActionConstanciaPreview || result.Action == models.ActionTransformacion {
		p.pendingPDF = result.PDFPath
	}
	p.logger.Info("stack push",
		"turn", tc.ID,
		"action", result.Action,
		"awaiting", reflexion.TipoEsperado,
		"rows", rowCount,
		"depth", p.stack.Len())
	return true
}

func (p *MessageProcessor) record(tc *TurnContext, action string, rowCount int, pushed bool, intention, awaiting string, elapsed time.Duration) {
	if p.journal == nil {
		return
	}
	entry := &journal.Entry{
		ID:        tc.ID,
		Timestamp: tc.Timestamp,
		Utterance: tc.Utterance,
		Intention: intention,
		Action:    action,
		RowCount:  rowCount,
		Pushed:    pushed,
		Awaiting:  awaiting,
		Duration:  elapsed,
	}
	if err := p.journal.Record(entry); err != nil {
		p.logger.Warn("journal record failed", "turn", tc.ID, "error", err)
	}
}

func matchesAny(utterance string, options []string) bool {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ',', '.', '!', '¡':
			return ' '
		}
		return r
	}, utterance)
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	for _, opt := range options {
		if cleaned == opt || strings.HasPrefix(cleaned, opt+" ") {
			return true
		}
	}
	return false
}

// replyPayload surfaces the structured side of a turn for panel callers.
func replyPayload(result *models.TurnResult) map[string]any {
	payload := map[string]any{"action": result.Action}
	if result.RowCount > 0 {
		payload["row_count"] = result.RowCount
		payload["rows"] = result.Rows
	}
	if result.SQL != "" {
		payload["sql"] = result.SQL
	}
	if result.PDFPath != "" {
		payload["pdf_path"] = result.PDFPath
	}
	return payload
}
