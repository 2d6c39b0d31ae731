package agent

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aulaflow/aulaflow/internal/conversation"
	"github.com/aulaflow/aulaflow/internal/docs"
	"github.com/aulaflow/aulaflow/internal/inference"
	"github.com/aulaflow/aulaflow/internal/models"
	"github.com/aulaflow/aulaflow/internal/prompt"
	"github.com/aulaflow/aulaflow/internal/schooldb"
)

// fakeLLM dispatches scripted responses by prompt kind. Each pipeline call
// carries a distinctive marker, so the fake stays robust against call
// ordering.
type fakeLLM struct {
	routing   []string
	action    []string
	filter    []string
	reply     []string
	humanize  []string
	actionHit int
	err       error
}

func (f *fakeLLM) SendPrompt(ctx context.Context, p string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	switch {
	case strings.Contains(p, "intérprete maestro"):
		return pop(&f.routing, `{"intention_type":"conversacion_general","sub_intention":"charla","confidence":0.5,"reasoning":"","detected_entities":{}}`), nil
	case strings.Contains(p, "Elige UNA acción"):
		f.actionHit++
		return pop(&f.action, ""), nil
	case strings.Contains(p, "debe recortarse"):
		return pop(&f.filter, `{"accion":"nada"}`), nil
	case strings.Contains(p, "Valida el resultado"):
		return pop(&f.reply, ""), nil
	case strings.Contains(p, "PERSONA:"):
		return pop(&f.humanize, "Respuesta humanizada."), nil
	default:
		return "", fmt.Errorf("unexpected prompt: %s", p[:60])
	}
}

func pop(queue *[]string, fallback string) string {
	if len(*queue) == 0 {
		return fallback
	}
	head := (*queue)[0]
	*queue = (*queue)[1:]
	return head
}

// fakeRenderer satisfies docs.Renderer and docs.Transformer without
// shelling out.
type fakeRenderer struct {
	fail bool
}

func (f *fakeRenderer) Render(ctx context.Context, kind models.ConstanciaKind, st *models.Student, opts docs.RenderOptions) (string, error) {
	if f.fail {
		return "", fmt.Errorf("renderer down")
	}
	return fmt.Sprintf("/tmp/constancia_%s_%d.pdf", kind, st.ID), nil
}

func (f *fakeRenderer) ExtractFields(ctx context.Context, path string) (*models.Student, error) {
	if f.fail {
		return nil, fmt.Errorf("extractor down")
	}
	return &models.Student{ID: 4, Nombre: "PEDRO SANCHEZ RUIZ"}, nil
}

func (f *fakeRenderer) RenderAs(ctx context.Context, st *models.Student, kind models.ConstanciaKind) (string, error) {
	return f.Render(ctx, kind, st, docs.RenderOptions{})
}

func newPipeline(t *testing.T, llm *fakeLLM) *MessageProcessor {
	t.Helper()
	return newPipelineWith(t, llm, "")
}

// newPipelineWith seeds the fixture school plus any extra rows the test
// needs.
func newPipelineWith(t *testing.T, llm *fakeLLM, extraSeed string) *MessageProcessor {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
CREATE TABLE alumnos (id INTEGER PRIMARY KEY, nombre TEXT, curp TEXT, matricula TEXT, fecha_nacimiento TEXT);
CREATE TABLE datos_escolares (id INTEGER PRIMARY KEY, alumno_id INTEGER, ciclo_escolar TEXT, grado INTEGER, grupo TEXT, turno TEXT, calificaciones TEXT DEFAULT '[]');
INSERT INTO alumnos VALUES
	(1, 'MARIA GARCIA LOPEZ', 'C1', 'A-001', '2015-03-04'),
	(2, 'JUAN CARLOS HERNANDEZ', 'C2', 'A-002', '2016-05-15'),
	(3, 'MARIA FERNANDA TORRES', 'C3', 'A-003', '2015-08-20'),
	(4, 'PEDRO SANCHEZ RUIZ', 'C4', 'A-004', '2014-01-02');
INSERT INTO datos_escolares (alumno_id, ciclo_escolar, grado, grupo, turno, calificaciones) VALUES
	(1, '2024-2025', 3, 'A', 'MATUTINO', '[{"nombre":"Matemáticas","promedio":9.5}]'),
	(2, '2024-2025', 3, 'B', 'VESPERTINO', '[]'),
	(3, '2024-2025', 2, 'A', 'VESPERTINO', '[]'),
	(4, '2024-2025', 1, 'A', 'MATUTINO', '[]');`)
	require.NoError(t, err)

	if extraSeed != "" {
		_, err = db.Exec(extraSeed)
		require.NoError(t, err)
	}

	exec := schooldb.NewExecutor(db)
	school := &schooldb.SchoolConfig{Name: "ESCUELA DE PRUEBA", TotalStudents: 4,
		Grades: []int{1, 2, 3}, Groups: []string{"A", "B"}, Shifts: []string{"MATUTINO", "VESPERTINO"}}

	logger := slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelWarn}))
	base := prompt.NewBaseManager(school)
	renderer := &fakeRenderer{}

	student := NewStudentInterpreter(llm, exec, schooldb.NewStudentRepository(exec),
		prompt.NewStudentManager(base), renderer, renderer, logger)
	help := NewHelpInterpreter(logger)
	general := NewGeneralInterpreter(llm, prompt.NewMasterManager(base), logger)
	master := NewMasterInterpreter(llm, prompt.NewMasterManager(base), student, help, general, logger)

	return NewMessageProcessor(master, conversation.NewStack(5, logger), nil, logger)
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSpace(string(p)))
	return len(p), nil
}

// TestPipelineExactCount runs the canonical "how many students" turn end to
// end and checks the exact SQL shape.
func TestPipelineExactCount(t *testing.T) {
	llm := &fakeLLM{
		routing: []string{`{"intention_type":"consulta_alumnos","sub_intention":"estadisticas","confidence":0.95,"reasoning":"conteo","detected_entities":{}}`},
		action:  []string{`{"estrategia":"simple","accion_principal":"CALCULAR_ESTADISTICA","parametros":{"tipo":"conteo"},"razonamiento":"conteo global"}`},
		reply:   []string{`{"respuesta_usuario":"Hay 4 alumnos.","reflexion_conversacional":{"espera_continuacion":false,"tipo_esperado":"none","datos_recordar":{},"razonamiento":"dato puntual"}}`},
	}
	p := newPipeline(t, llm)

	reply, err := p.Process(context.Background(), "¿cuántos alumnos hay en la escuela?")
	require.NoError(t, err)
	assert.True(t, reply.OK)
	assert.Equal(t, "SELECT COUNT(*) as total FROM alumnos", reply.Payload["sql"])
	assert.Empty(t, p.Stack(), "a closed statistic must not push a level")
}

// TestPipelineExactCountSeedsLevel keeps the count turn on the stack when
// the reflexion expects a follow-up: one level, one row, the canonical SQL.
func TestPipelineExactCountSeedsLevel(t *testing.T) {
	llm := &fakeLLM{
		routing: []string{`{"intention_type":"consulta_alumnos","sub_intention":"estadisticas","confidence":0.95,"reasoning":"conteo","detected_entities":{}}`},
		action:  []string{`{"estrategia":"simple","accion_principal":"CALCULAR_ESTADISTICA","parametros":{"tipo":"conteo"},"razonamiento":"conteo global"}`},
		reply:   []string{`{"respuesta_usuario":"Hay 4 alumnos.","reflexion_conversacional":{"espera_continuacion":true,"tipo_esperado":"action","datos_recordar":{},"razonamiento":"probable desglose posterior"}}`},
	}
	p := newPipeline(t, llm)

	reply, err := p.Process(context.Background(), "¿cuántos alumnos hay en la escuela?")
	require.NoError(t, err)
	assert.True(t, reply.OK)
	require.Len(t, p.Stack(), 1)

	level := p.Stack()[0]
	assert.Equal(t, 1, level.RowCount)
	assert.Equal(t, "SELECT COUNT(*) as total FROM alumnos", level.SQL)
	assert.Equal(t, models.AwaitingAction, level.Awaiting)
}

// twelveFifthGraders seeds a grado 5 group bigger than a level stores
// inline. Names sort in id order.
func twelveFifthGraders() string {
	var b strings.Builder
	for i := 0; i < 12; i++ {
		id := 10 + i
		turno := "MATUTINO"
		if i%2 == 1 {
			turno = "VESPERTINO"
		}
		fmt.Fprintf(&b, "INSERT INTO alumnos VALUES (%d, 'QUINTO ALUMNO %02d', 'Q%d', 'Q-%03d', '2013-02-1%d');\n",
			id, i+1, id, id, i%9)
		fmt.Fprintf(&b, "INSERT INTO datos_escolares (alumno_id, ciclo_escolar, grado, grupo, turno) VALUES (%d, '2024-2025', 5, 'A', '%s');\n",
			id, turno)
	}
	return b.String()
}

// TestPipelineContinuationOverTruncatedLevel checks a follow-up over a
// level that stores only a sample of its rows still restricts to every id
// of the original result, re-executing the stored SQL.
func TestPipelineContinuationOverTruncatedLevel(t *testing.T) {
	llm := &fakeLLM{
		routing: []string{
			`{"intention_type":"consulta_alumnos","sub_intention":"busqueda_simple","confidence":0.9,"reasoning":"","detected_entities":{"filtros":["grado: 5"]}}`,
			`{"intention_type":"consulta_alumnos","sub_intention":"busqueda_combinada","confidence":0.9,"reasoning":"","detected_entities":{"filtros":["turno: VESPERTINO"]}}`,
		},
		action: []string{
			`{"estrategia":"simple","accion_principal":"BUSCAR_UNIVERSAL","parametros":{"criterio_principal":{"tabla":"datos_escolares","campo":"grado","operador":"=","valor":5}},"razonamiento":""}`,
			`{"estrategia":"simple","accion_principal":"BUSCAR_UNIVERSAL","parametros":{"criterio_principal":{"tabla":"datos_escolares","campo":"turno","operador":"=","valor":"VESPERTINO"}},"razonamiento":""}`,
		},
		reply: []string{
			`{"respuesta_usuario":"Doce alumnos de quinto.","reflexion_conversacional":{"espera_continuacion":true,"tipo_esperado":"action","datos_recordar":{},"razonamiento":"probable filtro posterior"}}`,
			`{"respuesta_usuario":"Seis en vespertino.","reflexion_conversacional":{"espera_continuacion":true,"tipo_esperado":"action","datos_recordar":{},"razonamiento":""}}`,
		},
	}
	p := newPipelineWith(t, llm, twelveFifthGraders())
	ctx := context.Background()

	reply, err := p.Process(ctx, "alumnos de quinto grado")
	require.NoError(t, err)
	require.True(t, reply.OK)
	require.Len(t, p.Stack(), 1)

	level := p.Stack()[0]
	assert.Equal(t, 12, level.RowCount)
	assert.Len(t, level.Data, 10, "the level keeps only a sample inline")
	assert.True(t, level.Regenerable())

	reply, err = p.Process(ctx, "de esos, los del turno vespertino")
	require.NoError(t, err)
	require.True(t, reply.OK)
	continuationSQL, _ := reply.Payload["sql"].(string)
	assert.Contains(t, continuationSQL,
		"a.id IN (10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21)",
		"continuation must carry the full id set, not the inline sample")

	rows, _ := reply.Payload["rows"].([]models.Row)
	assert.Len(t, rows, 6)
}

// TestPipelineSearchThenContinuation checks a search pushes its level and
// the follow-up restricts to the exact id set.
func TestPipelineSearchThenContinuation(t *testing.T) {
	llm := &fakeLLM{
		routing: []string{
			`{"intention_type":"consulta_alumnos","sub_intention":"busqueda_simple","confidence":0.9,"reasoning":"","detected_entities":{"filtros":["grado: 3"]}}`,
			`{"intention_type":"consulta_alumnos","sub_intention":"busqueda_combinada","confidence":0.9,"reasoning":"","detected_entities":{"filtros":["turno: VESPERTINO"]}}`,
		},
		action: []string{
			`{"estrategia":"simple","accion_principal":"BUSCAR_UNIVERSAL","parametros":{"criterio_principal":{"tabla":"datos_escolares","campo":"grado","operador":"=","valor":3}},"razonamiento":""}`,
			`{"estrategia":"simple","accion_principal":"BUSCAR_UNIVERSAL","parametros":{"criterio_principal":{"tabla":"datos_escolares","campo":"turno","operador":"=","valor":"VESPERTINO"}},"razonamiento":""}`,
		},
		reply: []string{
			`{"respuesta_usuario":"Dos alumnos de tercero.","reflexion_conversacional":{"espera_continuacion":true,"tipo_esperado":"action","datos_recordar":{},"razonamiento":"probable filtro posterior"}}`,
			`{"respuesta_usuario":"Uno en vespertino.","reflexion_conversacional":{"espera_continuacion":true,"tipo_esperado":"action","datos_recordar":{},"razonamiento":""}}`,
		},
	}
	p := newPipeline(t, llm)
	ctx := context.Background()

	reply, err := p.Process(ctx, "alumnos de tercer grado")
	require.NoError(t, err)
	require.True(t, reply.OK)
	require.Len(t, p.Stack(), 1)
	assert.Equal(t, 2, p.Stack()[0].RowCount)

	reply, err = p.Process(ctx, "de esos, los del turno vespertino")
	require.NoError(t, err)
	require.True(t, reply.OK)
	continuationSQL, _ := reply.Payload["sql"].(string)
	// The first search orders by name, so JUAN (id 2) precedes MARIA (id 1).
	assert.Contains(t, continuationSQL, "a.id IN (2, 1)",
		"continuation must carry the full id set of the previous level")

	rows, _ := reply.Payload["rows"].([]models.Row)
	require.Len(t, rows, 1)
	assert.Equal(t, "JUAN CARLOS HERNANDEZ", rows[0]["nombre"])
}

// TestPipelineRankingBlocked checks the knowledge map stops rankings before
// the student runs and offers alternatives.
func TestPipelineRankingBlocked(t *testing.T) {
	llm := &fakeLLM{
		routing: []string{`{"intention_type":"consulta_alumnos","sub_intention":"ranking_alumnos","confidence":0.9,"reasoning":"","detected_entities":{}}`},
	}
	p := newPipeline(t, llm)

	reply, err := p.Process(context.Background(), "dame los 5 mejores alumnos")
	require.NoError(t, err)
	assert.True(t, reply.OK)
	assert.Equal(t, models.ActionLimitacion, reply.Payload["action"])
	assert.Contains(t, reply.UserMessage, "sí puedo hacer")
	assert.Zero(t, llm.actionHit, "the student must never run for a blocked capability")
	assert.Empty(t, p.Stack())
}

// TestPipelineConstanciaSelectionAndConfirmation drives the full constancia
// flow: ambiguous name, numbered selection, preview, confirmation.
func TestPipelineConstanciaSelectionAndConfirmation(t *testing.T) {
	llm := &fakeLLM{
		routing: []string{
			`{"intention_type":"consulta_alumnos","sub_intention":"generar_constancia","confidence":0.9,"reasoning":"","detected_entities":{"alumno_resuelto":{"nombre":"maria"},"tipo_constancia":"estudios"}}`,
			`{"intention_type":"consulta_alumnos","sub_intention":"generar_constancia","confidence":0.9,"reasoning":"","detected_entities":{"alumno_resuelto":{"nombre":"MARIA GARCIA LOPEZ"},"tipo_constancia":"estudios"}}`,
		},
		action: []string{
			`{"estrategia":"simple","accion_principal":"GENERAR_CONSTANCIA_COMPLETA","parametros":{"alumno_identificador":"maria","tipo_constancia":"estudios"},"razonamiento":""}`,
			`{"estrategia":"simple","accion_principal":"GENERAR_CONSTANCIA_COMPLETA","parametros":{"alumno_identificador":"MARIA GARCIA LOPEZ","tipo_constancia":"estudios"},"razonamiento":""}`,
		},
	}
	p := newPipeline(t, llm)
	ctx := context.Background()

	// Ambiguous: two MARIAs in the fixture.
	reply, err := p.Process(ctx, "genera una constancia para maria")
	require.NoError(t, err)
	assert.Equal(t, models.ActionSeleccionRequerida, reply.Payload["action"])
	assert.Contains(t, reply.UserMessage, "1.")
	assert.Contains(t, reply.UserMessage, "2.")
	require.Len(t, p.Stack(), 1)
	assert.Equal(t, models.AwaitingSelection, p.Stack()[0].Awaiting)

	// Full name resolves to exactly one student and yields a preview.
	reply, err = p.Process(ctx, "constancia de estudios para MARIA GARCIA LOPEZ")
	require.NoError(t, err)
	assert.True(t, reply.OK)
	assert.Equal(t, "/tmp/constancia_estudios_1.pdf", reply.Payload["pdf_path"])
	require.Len(t, p.Stack(), 2)
	assert.Equal(t, models.AwaitingConfirmation, p.Stack()[1].Awaiting)

	// Confirmation clears the whole stack without an LLM round trip.
	reply, err = p.Process(ctx, "sí")
	require.NoError(t, err)
	assert.True(t, reply.OK)
	assert.Contains(t, reply.UserMessage, "/tmp/constancia_estudios_1.pdf")
	assert.Empty(t, p.Stack(), "a confirmed constancia clears the stack")
}

// TestPipelineConstanciaCancellation keeps the student data referenceable
// after a "no".
func TestPipelineConstanciaCancellation(t *testing.T) {
	llm := &fakeLLM{
		routing: []string{`{"intention_type":"consulta_alumnos","sub_intention":"generar_constancia","confidence":0.9,"reasoning":"","detected_entities":{"alumno_resuelto":{"nombre":"PEDRO SANCHEZ RUIZ"}}}`},
		action:  []string{`{"estrategia":"simple","accion_principal":"GENERAR_CONSTANCIA_COMPLETA","parametros":{"alumno_identificador":"PEDRO SANCHEZ RUIZ"},"razonamiento":""}`},
	}
	p := newPipeline(t, llm)
	ctx := context.Background()

	_, err := p.Process(ctx, "constancia para PEDRO SANCHEZ RUIZ")
	require.NoError(t, err)
	require.Len(t, p.Stack(), 1)

	reply, err := p.Process(ctx, "no, mejor no")
	require.NoError(t, err)
	assert.True(t, reply.OK)
	require.Len(t, p.Stack(), 1, "cancellation keeps the level")
	assert.Equal(t, models.AwaitingNone, p.Stack()[0].Awaiting)
}

// TestPipelineValidationFailure turns VALIDACION_FALLIDA into a recoverable
// failed turn.
func TestPipelineValidationFailure(t *testing.T) {
	llm := &fakeLLM{
		routing: []string{`{"intention_type":"consulta_alumnos","sub_intention":"busqueda_simple","confidence":0.9,"reasoning":"","detected_entities":{}}`},
		action:  []string{`{"estrategia":"simple","accion_principal":"BUSCAR_UNIVERSAL","parametros":{"criterio_principal":{"campo":"grado","valor":2}},"razonamiento":""}`},
		reply:   []string{"VALIDACION_FALLIDA"},
	}
	p := newPipeline(t, llm)

	reply, err := p.Process(context.Background(), "alumnos de segundo")
	require.NoError(t, err)
	assert.False(t, reply.OK)
	assert.Equal(t, models.ActionFallo, reply.Payload["action"])
	assert.Empty(t, p.Stack(), "a failed turn must not push a level")
}

// TestPipelineUnavailable returns the apology and leaves the stack alone.
func TestPipelineUnavailable(t *testing.T) {
	llm := &fakeLLM{err: fmt.Errorf("wrap: %w", inference.ErrUnavailable)}
	p := newPipeline(t, llm)

	reply, err := p.Process(context.Background(), "¿cuántos alumnos hay?")
	require.NoError(t, err)
	assert.False(t, reply.OK)
	assert.Contains(t, reply.UserMessage, "no está disponible")
	assert.Empty(t, p.Stack())
}

// TestPipelineRoutingFallback survives two malformed routing responses.
func TestPipelineRoutingFallback(t *testing.T) {
	llm := &fakeLLM{
		routing: []string{"no soy json", "sigo sin ser json"},
		action:  []string{`{"estrategia":"simple","accion_principal":"BUSCAR_UNIVERSAL","parametros":{"criterio_principal":{"campo":"nombre","valor":"GARCIA"}},"razonamiento":""}`},
		reply:   []string{`{"respuesta_usuario":"Un alumno.","reflexion_conversacional":{"espera_continuacion":false,"tipo_esperado":"none","datos_recordar":{},"razonamiento":""}}`},
	}
	p := newPipeline(t, llm)

	reply, err := p.Process(context.Background(), "busca a garcia")
	require.NoError(t, err)
	assert.True(t, reply.OK, "fallback routing must keep the turn alive")
}
