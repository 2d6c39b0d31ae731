package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aulaflow/aulaflow/internal/catalog"
	"github.com/aulaflow/aulaflow/internal/models"
)

// HelpInterpreter answers questions about what the assistant can do. It
// renders the capability catalogue directly and never touches the database.
type HelpInterpreter struct {
	logger *slog.Logger
}

func NewHelpInterpreter(logger *slog.Logger) *HelpInterpreter {
	if logger == nil {
		logger = slog.Default()
	}
	return &HelpInterpreter{logger: logger}
}

// Name implements Specialist.
func (h *HelpInterpreter) Name() string { return "help" }

// Interpret implements Specialist.
func (h *HelpInterpreter) Interpret(ctx context.Context, intent *models.Intention, tc *TurnContext) (*models.TurnResult, error) {
	var b strings.Builder
	b.WriteString("Puedo ayudarte con lo siguiente:\n")
	for _, info := range catalog.SystemCatalogue() {
		if info.Type != models.IntentionConsultaAlumnos && info.Type != models.IntentionTransformacionPDF {
			continue
		}
		for _, sub := range info.SubIntentions {
			capability := catalog.Lookup(sub.Name)
			if !capability.CanHandle {
				continue
			}
			fmt.Fprintf(&b, "- %s", sub.Description)
			if len(sub.Examples) > 0 {
				fmt.Fprintf(&b, " (por ejemplo: %q)", sub.Examples[0])
			}
			b.WriteString("\n")
		}
	}
	b.WriteString("Escribe tu consulta en lenguaje natural y yo me encargo del resto.")

	return &models.TurnResult{
		Action:  models.ActionAyuda,
		Message: b.String(),
	}, nil
}
