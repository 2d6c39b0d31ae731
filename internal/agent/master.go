package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aulaflow/aulaflow/internal/catalog"
	"github.com/aulaflow/aulaflow/internal/inference"
	"github.com/aulaflow/aulaflow/internal/models"
	"github.com/aulaflow/aulaflow/internal/prompt"
)

// unavailableApology is the fixed reply when every inference endpoint is
// down. Nothing is pushed to the stack in that case.
const unavailableApology = "Lo siento, el asistente no está disponible en este momento. Intenta de nuevo en unos minutos."

// MasterInterpreter owns the outer turn pipeline: routing front call,
// contextual reference resolution, feasibility gate, specialist dispatch
// and the humanization back call.
type MasterInterpreter struct {
	client      LLMClient
	prompts     *prompt.MasterManager
	specialists map[models.IntentionType]Specialist
	logger      *slog.Logger
}

// NewMasterInterpreter builds the dispatch table. Student handles both
// consulta_alumnos and transformacion_pdf; help and general have dedicated
// specialists.
func NewMasterInterpreter(client LLMClient, prompts *prompt.MasterManager, student, help, general Specialist, logger *slog.Logger) *MasterInterpreter {
	if logger == nil {
		logger = slog.Default()
	}
	return &MasterInterpreter{
		client:  client,
		prompts: prompts,
		specialists: map[models.IntentionType]Specialist{
			models.IntentionConsultaAlumnos:     student,
			models.IntentionTransformacionPDF:   student,
			models.IntentionAyudaSistema:        help,
			models.IntentionConversacionGeneral: general,
		},
		logger: logger,
	}
}

// Interpret runs one full turn and returns the humanized result.
func (m *MasterInterpreter) Interpret(ctx context.Context, tc *TurnContext) (*models.TurnResult, *models.Intention, error) {
	intent, err := m.route(ctx, tc)
	if err != nil {
		if errors.Is(err, inference.ErrUnavailable) {
			return m.apology(), nil, nil
		}
		return nil, nil, err
	}

	normalized, remapped := catalog.NormalizeIntention(string(intent.Type))
	if remapped {
		m.logger.Info("intention remapped", "from", intent.Type, "to", normalized)
	}
	intent.Type = normalized

	// Contextual reference resolution happens before any specialist runs,
	// so the student receives a concrete alumno_resuelto.
	resolved, ambiguity := ResolveReference(tc.Utterance, intent.Entities.AlumnoResuelto, tc.Stack)
	if ambiguity != nil {
		return &models.TurnResult{
			Action:   models.ActionAclaracion,
			Rows:     ambiguity.Candidates,
			RowCount: len(ambiguity.Candidates),
			Message: fmt.Sprintf("%s\n%s¿A cuál te refieres?",
				ambiguity.Reason, CandidateList(ambiguity.Candidates)),
			Reflexion: &models.Reflexion{
				EsperaContinuacion: true,
				TipoEsperado:       models.AwaitingSelection,
				DatosRecordar: models.DatosRecordar{
					Query:    tc.Utterance,
					Data:     ambiguity.Candidates,
					RowCount: len(ambiguity.Candidates),
					Context:  "referencia ambigua",
				},
				Razonamiento: "la referencia coincide con varios alumnos",
			},
		}, intent, nil
	}
	intent.Entities.AlumnoResuelto = resolved

	// Feasibility gate: known limitations never reach the student.
	if capability := catalog.Lookup(intent.SubIntention); !capability.CanHandle {
		m.logger.Info("sub-intention gated", "sub_intention", intent.SubIntention)
		return limitationResult(intent.SubIntention, capability), intent, nil
	}

	specialist, ok := m.specialists[intent.Type]
	if !ok {
		m.logger.Warn("no specialist for intention", "intention", intent.Type)
		specialist = m.specialists[models.IntentionConversacionGeneral]
	}

	result, err := specialist.Interpret(ctx, intent, tc)
	if err != nil {
		if errors.Is(err, inference.ErrUnavailable) {
			return m.apology(), intent, nil
		}
		return nil, intent, err
	}

	m.humanize(ctx, tc, result)
	return result, intent, nil
}

// route performs the front LLM call with one retry; a best-effort fallback
// intention keeps the turn alive when both attempts are malformed.
func (m *MasterInterpreter) route(ctx context.Context, tc *TurnContext) (*models.Intention, error) {
	promptText := m.prompts.Routing(tc.Utterance, tc.Stack)

	for attempt := 0; attempt < 2; attempt++ {
		raw, err := m.client.SendPrompt(ctx, promptText)
		if err != nil {
			return nil, err
		}
		obj, err := inference.ExtractJSON(raw)
		if err != nil {
			m.logger.Warn("routing malformed, retrying", "attempt", attempt, "error", err)
			continue
		}
		intent, err := models.UnmarshalIntention(obj)
		if err != nil {
			m.logger.Warn("routing unmarshal failed, retrying", "attempt", attempt, "error", err)
			continue
		}
		intent.Confidence = inference.ClampConfidence(intent.Confidence)
		return intent, nil
	}

	// Fallback route: treat the turn as a simple student search.
	m.logger.Warn("routing failed twice, using fallback intention")
	return &models.Intention{
		Type:         models.IntentionConsultaAlumnos,
		SubIntention: "busqueda_simple",
		Confidence:   0.3,
		Reasoning:    "ruta por omisión tras salida malformada",
	}, nil
}

// humanize rewrites the technical message in the school secretary's voice.
// On any inference failure the deterministic message already on the result
// stands.
func (m *MasterInterpreter) humanize(ctx context.Context, tc *TurnContext, result *models.TurnResult) {
	kind := turnKind(result.Action)
	if kind == "" {
		return
	}

	criteria := ExtractCriteria(result.SQL)
	continuation := ""
	if result.Reflexion != nil && result.Reflexion.EsperaContinuacion {
		continuation = string(result.Reflexion.TipoEsperado)
	}
	rowsView := prompt.RowsExemplar(result.Rows, result.RowCount)

	raw, err := m.client.SendPrompt(ctx, m.prompts.Humanize(kind, tc.Utterance, rowsView, criteria, continuation))
	if err != nil {
		m.logger.Warn("humanization failed, keeping technical reply", "error", err)
		result.Message = fallbackMessage(kind, result)
		return
	}

	message := strings.TrimSpace(raw)
	if message == "" {
		result.Message = fallbackMessage(kind, result)
		return
	}
	result.Message = message
}

// turnKind classifies a result for the humanization prompt. Empty means the
// message is already user-facing and must not be rewritten.
func turnKind(action string) string {
	switch action {
	case models.ActionBusqueda:
		return "busqueda"
	case models.ActionEstadistica:
		return "estadistica"
	case models.ActionConstanciaPreview, models.ActionConstanciaError:
		return "constancia"
	case models.ActionTransformacion:
		return "transformacion"
	case models.ActionFallo:
		return "fallo"
	default:
		return ""
	}
}

// fallbackMessage renders a deterministic reply per turn kind when the
// humanization call fails.
func fallbackMessage(kind string, result *models.TurnResult) string {
	switch kind {
	case "busqueda":
		if result.RowCount == 0 {
			return "No encontré alumnos con esos criterios."
		}
		return fmt.Sprintf("Encontré %d alumnos:\n%s", result.RowCount, CandidateList(result.Rows))
	case "estadistica":
		if len(result.Rows) == 1 && len(result.Rows[0]) == 1 {
			for _, v := range result.Rows[0] {
				return fmt.Sprintf("El resultado es %v.", v)
			}
		}
		return fmt.Sprintf("La estadística arrojó %d filas.", len(result.Rows))
	case "constancia", "transformacion":
		if result.PDFPath != "" {
			return fmt.Sprintf("El documento quedó en %s. ¿Lo confirmo?", result.PDFPath)
		}
		return result.Message
	case "fallo":
		if result.Message != "" {
			return fmt.Sprintf("No pude completar la consulta: %s. ¿Puedes reformularla?", result.Message)
		}
		return "No pude completar la consulta. ¿Puedes reformularla?"
	default:
		if result.Message != "" {
			return result.Message
		}
		return "Listo."
	}
}

// limitationResult explains a known limitation and offers the alternatives
// the system can actually run.
func limitationResult(subIntention string, capability catalog.Capability) *models.TurnResult {
	var b strings.Builder
	fmt.Fprintf(&b, "Por ahora no puedo resolver %q.", strings.ReplaceAll(subIntention, "_", " "))
	for _, lim := range capability.Limitations {
		fmt.Fprintf(&b, " %s.", lim)
	}
	if len(capability.Alternatives) > 0 {
		b.WriteString(" Lo que sí puedo hacer: ")
		b.WriteString(strings.Join(capability.Alternatives, "; "))
		b.WriteString(".")
	}
	return &models.TurnResult{
		Action:  models.ActionLimitacion,
		Message: b.String(),
	}
}

func (m *MasterInterpreter) apology() *models.TurnResult {
	return &models.TurnResult{
		Action:  models.ActionFallo,
		Failure: true,
		Message: unavailableApology,
	}
}
