package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aulaflow/aulaflow/internal/catalog"
	"github.com/aulaflow/aulaflow/internal/conversation"
	"github.com/aulaflow/aulaflow/internal/docs"
	"github.com/aulaflow/aulaflow/internal/inference"
	"github.com/aulaflow/aulaflow/internal/models"
	"github.com/aulaflow/aulaflow/internal/prompt"
	"github.com/aulaflow/aulaflow/internal/schooldb"
)

// LLMClient is the narrow inference surface the interpreters depend on.
// *inference.Client satisfies it; tests substitute a scripted fake.
type LLMClient interface {
	SendPrompt(ctx context.Context, prompt string) (string, error)
}

// validationFailed is the literal the reply call returns when the executed
// SQL does not answer the utterance.
const validationFailed = "VALIDACION_FALLIDA"

// continuationPrefixes mark utterances that operate over the previous
// result set.
var continuationPrefixes = []string{
	"de esos", "de esas", "de ellos", "de ellas",
	"de los anteriores", "de las anteriores", "de estos", "de estas",
}

// StudentInterpreter is the specialist for student-data intents. Two LLM
// calls per turn: action selection first, reply plus reflexion after the
// deterministic SQL synthesis and execution in between.
type StudentInterpreter struct {
	client      LLMClient
	exec        *schooldb.Executor
	repo        *schooldb.StudentRepository
	prompts     *prompt.StudentManager
	renderer    docs.Renderer
	transformer docs.Transformer
	logger      *slog.Logger
}

// NewStudentInterpreter wires the specialist.
func NewStudentInterpreter(
	client LLMClient,
	exec *schooldb.Executor,
	repo *schooldb.StudentRepository,
	prompts *prompt.StudentManager,
	renderer docs.Renderer,
	transformer docs.Transformer,
	logger *slog.Logger,
) *StudentInterpreter {
	if logger == nil {
		logger = slog.Default()
	}
	return &StudentInterpreter{
		client:      client,
		exec:        exec,
		repo:        repo,
		prompts:     prompts,
		renderer:    renderer,
		transformer: transformer,
		logger:      logger,
	}
}

// Name implements Specialist.
func (s *StudentInterpreter) Name() string { return "student" }

// actionSelection is the JSON shape of the first LLM call.
type actionSelection struct {
	Estrategia      string          `json:"estrategia"`
	AccionPrincipal string          `json:"accion_principal"`
	Parametros      json.RawMessage `json:"parametros"`
	Razonamiento    string          `json:"razonamiento"`
}

// Interpret implements Specialist.
func (s *StudentInterpreter) Interpret(ctx context.Context, intent *models.Intention, tc *TurnContext) (*models.TurnResult, error) {
	selection, err := s.selectAction(ctx, intent, tc)
	if err != nil {
		return nil, err
	}

	code, ok := catalog.NormalizeAction(selection.AccionPrincipal)
	if !ok {
		s.logger.Warn("unknown action from llm", "action", selection.AccionPrincipal)
		return s.failureResult(fmt.Sprintf("acción desconocida %q", selection.AccionPrincipal)), nil
	}

	switch code {
	case catalog.ActionBuscarUniversal:
		return s.runSearch(ctx, selection.Parametros, tc, false)
	case catalog.ActionContarUniversal:
		return s.runSearch(ctx, selection.Parametros, tc, true)
	case catalog.ActionCalcularEstadistica:
		return s.runStatistic(ctx, selection.Parametros, tc)
	case catalog.ActionFiltrarCalificaciones:
		return s.runGradesFilter(ctx, selection.Parametros, tc)
	case catalog.ActionGenerarConstancia:
		return s.runConstancia(ctx, selection.Parametros, intent, tc)
	case catalog.ActionTransformarPDF:
		return s.runTransform(ctx, selection.Parametros, tc)
	default:
		return s.failureResult(fmt.Sprintf("acción no implementada %q", code)), nil
	}
}

// selectAction performs the first LLM call with a single retry on
// malformed output.
func (s *StudentInterpreter) selectAction(ctx context.Context, intent *models.Intention, tc *TurnContext) (*actionSelection, error) {
	promptText := s.prompts.ActionSelection(intent, tc.Utterance, tc.Stack)

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		raw, err := s.client.SendPrompt(ctx, promptText)
		if err != nil {
			return nil, err
		}
		obj, err := inference.ExtractJSON(raw)
		if err != nil {
			lastErr = err
			s.logger.Warn("action selection malformed, retrying", "attempt", attempt, "error", err)
			continue
		}
		var sel actionSelection
		if err := json.Unmarshal(obj, &sel); err != nil {
			lastErr = fmt.Errorf("%w: %v", inference.ErrMalformed, err)
			continue
		}
		return &sel, nil
	}
	return nil, lastErr
}

// runSearch handles BUSCAR_UNIVERSAL and CONTAR_UNIVERSAL.
func (s *StudentInterpreter) runSearch(ctx context.Context, params json.RawMessage, tc *TurnContext, count bool) (*models.TurnResult, error) {
	var p SearchParams
	if err := json.Unmarshal(params, &p); err != nil {
		return s.failureResult("parámetros de búsqueda inválidos"), nil
	}

	ctxIDs, err := s.continuationIDs(ctx, tc)
	if err != nil {
		return nil, err
	}

	var query string
	if count {
		query, err = BuildCount(&p, ctxIDs)
	} else {
		query, err = BuildSearch(&p, ctxIDs)
	}
	if err != nil {
		s.logger.Warn("sql synthesis failed", "error", err)
		return s.failureResult("no pude construir la consulta"), nil
	}

	res, err := s.exec.Execute(ctx, query)
	if err != nil {
		if errors.Is(err, schooldb.ErrNotSelect) {
			return s.failureResult("la consulta generada no es de lectura"), nil
		}
		return s.failureResult("la consulta no pudo ejecutarse"), nil
	}

	action := models.ActionBusqueda
	if count {
		action = models.ActionEstadistica
	}

	rows := res.Rows
	if !count {
		rows = s.finalFilter(ctx, tc.Utterance, rows)
	}

	return s.replyAndReflect(ctx, tc.Utterance, action, res.SQL, rows, res.RowCount)
}

// runStatistic handles CALCULAR_ESTADISTICA.
func (s *StudentInterpreter) runStatistic(ctx context.Context, params json.RawMessage, tc *TurnContext) (*models.TurnResult, error) {
	var p StatsParams
	if err := json.Unmarshal(params, &p); err != nil {
		return s.failureResult("parámetros de estadística inválidos"), nil
	}

	ctxIDs, err := s.continuationIDs(ctx, tc)
	if err != nil {
		return nil, err
	}

	query, err := BuildStatistic(&p, ctxIDs)
	if err != nil {
		s.logger.Warn("statistic synthesis failed", "error", err)
		return s.failureResult("no pude construir la estadística"), nil
	}

	res, err := s.exec.Execute(ctx, query)
	if err != nil {
		return s.failureResult("la estadística no pudo ejecutarse"), nil
	}

	return s.replyAndReflect(ctx, tc.Utterance, models.ActionEstadistica, res.SQL, res.Rows, res.RowCount)
}

// runGradesFilter handles FILTRAR_POR_CALIFICACIONES.
func (s *StudentInterpreter) runGradesFilter(ctx context.Context, params json.RawMessage, tc *TurnContext) (*models.TurnResult, error) {
	var p GradesFilterParams
	if err := json.Unmarshal(params, &p); err != nil {
		return s.failureResult("parámetros de filtro inválidos"), nil
	}

	ctxIDs, err := s.continuationIDs(ctx, tc)
	if err != nil {
		return nil, err
	}

	query := BuildGradesFilter(p.ConCalificaciones, ctxIDs)
	res, err := s.exec.Execute(ctx, query)
	if err != nil {
		return s.failureResult("el filtro no pudo ejecutarse"), nil
	}

	rows := s.finalFilter(ctx, tc.Utterance, res.Rows)
	return s.replyAndReflect(ctx, tc.Utterance, models.ActionBusqueda, res.SQL, rows, res.RowCount)
}

// continuationIDs returns every student id of the active stack level when
// the utterance continues over it. Regenerable levels re-execute their
// stored SQL so the id list is complete, never just the inline sample.
func (s *StudentInterpreter) continuationIDs(ctx context.Context, tc *TurnContext) ([]int, error) {
	if !isContinuation(tc.Utterance) {
		return nil, nil
	}
	level, ok := conversation.NewestWithRows(tc.Stack)
	if !ok {
		return nil, nil
	}

	rows := level.Data
	if level.Regenerable() && level.SQL != "" {
		res, err := s.exec.Execute(ctx, level.SQL)
		if err != nil {
			return nil, fmt.Errorf("regenerate context level: %w", err)
		}
		rows = res.Rows
	}

	ids := make([]int, 0, len(rows))
	for _, row := range rows {
		switch v := row["id"].(type) {
		case int64:
			ids = append(ids, int(v))
		case int:
			ids = append(ids, v)
		case float64:
			ids = append(ids, int(v))
		}
	}
	return ids, nil
}

// isContinuation checks the leading words of the utterance.
func isContinuation(utterance string) bool {
	lowered := strings.ToLower(strings.TrimSpace(utterance))
	for _, prefix := range continuationPrefixes {
		if strings.HasPrefix(lowered, prefix) {
			return true
		}
	}
	return false
}

// finalFilter runs the LLM-advised trim pass. The deterministic rules win
// on conflict and serve alone when the advisory call fails.
func (s *StudentInterpreter) finalFilter(ctx context.Context, utterance string, rows []models.Row) []models.Row {
	rule := RuleFilterDecision(utterance, len(rows))

	decision := rule
	if len(rows) > 0 {
		cols := make([]string, 0, len(rows[0]))
		for col := range rows[0] {
			cols = append(cols, col)
		}
		raw, err := s.client.SendPrompt(ctx, s.prompts.FinalFilter(utterance, len(rows), cols))
		if err == nil {
			if obj, err := inference.ExtractJSON(raw); err == nil {
				var llm FilterDecision
				if json.Unmarshal(obj, &llm) == nil {
					decision = mergeFilterDecision(rule, llm)
				}
			}
		}
	}

	return ApplyFilter(rows, decision)
}

// studentReply is the JSON shape of the second LLM call.
type studentReply struct {
	RespuestaUsuario string            `json:"respuesta_usuario"`
	Reflexion        *models.Reflexion `json:"reflexion_conversacional"`
}

// replyAndReflect performs the second LLM call: validation, technical reply
// and self-reflection. One retry on malformed output; a deterministic
// fallback keeps the turn alive when both attempts fail.
func (s *StudentInterpreter) replyAndReflect(ctx context.Context, utterance, action, executedSQL string, rows []models.Row, totalRows int) (*models.TurnResult, error) {
	promptText := s.prompts.ReplyAndReflexion(utterance, executedSQL, rows)

	for attempt := 0; attempt < 2; attempt++ {
		raw, err := s.client.SendPrompt(ctx, promptText)
		if err != nil {
			return nil, err
		}
		if strings.Contains(raw, validationFailed) {
			s.logger.Warn("student validation failed", "sql", executedSQL)
			return &models.TurnResult{
				Action:  models.ActionFallo,
				Failure: true,
				SQL:     executedSQL,
				Message: "la consulta ejecutada no responde la pregunta",
			}, nil
		}

		obj, err := inference.ExtractJSON(raw)
		if err != nil {
			continue
		}
		var reply studentReply
		if err := json.Unmarshal(obj, &reply); err != nil {
			continue
		}

		reflexion := reply.Reflexion
		if reflexion == nil {
			reflexion = s.defaultReflexion(utterance, executedSQL, rows, totalRows)
		} else if reflexion.DatosRecordar.RowCount == 0 && totalRows > 0 {
			reflexion.DatosRecordar = models.DatosRecordar{
				Query:    utterance,
				Data:     rows,
				RowCount: totalRows,
				Context:  executedSQL,
			}
		}

		return &models.TurnResult{
			Action:    action,
			Rows:      rows,
			RowCount:  totalRows,
			SQL:       executedSQL,
			Message:   reply.RespuestaUsuario,
			Reflexion: reflexion,
		}, nil
	}

	// Both attempts malformed: deterministic technical reply.
	s.logger.Warn("student reply malformed twice, using fallback")
	return &models.TurnResult{
		Action:    action,
		Rows:      rows,
		RowCount:  totalRows,
		SQL:       executedSQL,
		Message:   fmt.Sprintf("Se encontraron %d resultados.", totalRows),
		Reflexion: s.defaultReflexion(utterance, executedSQL, rows, totalRows),
	}, nil
}

// defaultReflexion expects a continuation whenever the turn produced rows
// the user is likely to drill into.
func (s *StudentInterpreter) defaultReflexion(utterance, executedSQL string, rows []models.Row, totalRows int) *models.Reflexion {
	return &models.Reflexion{
		EsperaContinuacion: totalRows > 0,
		TipoEsperado:       models.AwaitingAction,
		DatosRecordar: models.DatosRecordar{
			Query:    utterance,
			Data:     rows,
			RowCount: totalRows,
			Context:  executedSQL,
		},
		Razonamiento: "reflexión por omisión tras respuesta malformada",
	}
}

func (s *StudentInterpreter) failureResult(message string) *models.TurnResult {
	return &models.TurnResult{
		Action:  models.ActionFallo,
		Failure: true,
		Message: message,
	}
}
