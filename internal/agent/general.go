package agent

import (
	"context"
	"log/slog"
	"strings"

	"github.com/aulaflow/aulaflow/internal/models"
	"github.com/aulaflow/aulaflow/internal/prompt"
)

// GeneralInterpreter handles small talk and anything outside the school
// domain. One LLM call in the secretary persona; a canned reply when the
// call fails for any reason.
type GeneralInterpreter struct {
	client  LLMClient
	prompts *prompt.MasterManager
	logger  *slog.Logger
}

func NewGeneralInterpreter(client LLMClient, prompts *prompt.MasterManager, logger *slog.Logger) *GeneralInterpreter {
	if logger == nil {
		logger = slog.Default()
	}
	return &GeneralInterpreter{client: client, prompts: prompts, logger: logger}
}

// Name implements Specialist.
func (g *GeneralInterpreter) Name() string { return "general" }

// Interpret implements Specialist.
func (g *GeneralInterpreter) Interpret(ctx context.Context, intent *models.Intention, tc *TurnContext) (*models.TurnResult, error) {
	message := "Con gusto. Si necesitas buscar alumnos, generar constancias o revisar estadísticas, dime y te ayudo."

	raw, err := g.client.SendPrompt(ctx, g.prompts.Humanize("conversacion", tc.Utterance, "", nil, ""))
	if err != nil {
		g.logger.Warn("general reply failed", "error", err)
	} else if trimmed := strings.TrimSpace(raw); trimmed != "" {
		message = trimmed
	}

	return &models.TurnResult{
		Action:  models.ActionConversacion,
		Message: message,
	}, nil
}
