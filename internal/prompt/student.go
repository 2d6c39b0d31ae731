package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aulaflow/aulaflow/internal/catalog"
	"github.com/aulaflow/aulaflow/internal/conversation"
	"github.com/aulaflow/aulaflow/internal/models"
)

// StudentManager composes the student's prompts: action selection, the
// final-filter advisory call and the reply + reflexion call.
type StudentManager struct {
	base *BaseManager
}

// NewStudentManager creates the student's prompt composer.
func NewStudentManager(base *BaseManager) *StudentManager {
	return &StudentManager{base: base}
}

// actionSchema is the JSON contract of the action selection call.
const actionSchema = `FORMATO DE RESPUESTA (SOLO JSON):
{
  "estrategia": "simple",
  "accion_principal": "CÓDIGO_DEL_CATÁLOGO",
  "parametros": { ... según el esquema de la acción ... },
  "razonamiento": "por qué esta acción"
}`

// ActionSelection builds the first student call: pick one catalogue action
// with parameters for the routed intention.
func (m *StudentManager) ActionSelection(intent *models.Intention, utterance string, snapshot []conversation.Level) string {
	intentJSON, _ := json.Marshal(intent)

	var b strings.Builder
	b.WriteString("Eres el especialista en datos de alumnos. Elige UNA acción del catálogo ")
	b.WriteString("y sus parámetros para resolver la intención recibida.\n\n")
	b.WriteString(m.base.SchoolBlock())
	b.WriteString("\n\n")
	b.WriteString(SchemaBlock)
	b.WriteString("\n\n")
	b.WriteString(m.base.StackSummary(snapshot, 2))
	b.WriteString("\n\n")
	b.WriteString(catalog.ActionsPromptSection())
	b.WriteString("\n")
	if level, ok := conversation.NewestWithRows(snapshot); ok {
		fmt.Fprintf(&b, "ATENCIÓN: si la consulta continúa sobre el nivel %d (\"de esos...\"), el SQL DEBE incluir alumnos.id IN (...) con TODOS los %d ids del contexto, sin truncar la lista.\n\n",
			level.ID, level.RowCount)
	}
	fmt.Fprintf(&b, "INTENCIÓN DEL MAESTRO: %s\n", string(intentJSON))
	fmt.Fprintf(&b, "MENSAJE DEL USUARIO: %q\n\n", utterance)
	b.WriteString(actionSchema)
	b.WriteString("\n\nResponde ÚNICAMENTE con el objeto JSON:")
	return b.String()
}

// filterSchema is the JSON contract of the final-filter advisory call.
const filterSchema = `FORMATO DE RESPUESTA (SOLO JSON):
{
  "accion": "nada|limitar|proyectar|compactar",
  "limite": 0,
  "campos": ["..."]
}`

// FinalFilter builds the short advisory call that decides whether to trim
// rows or project columns before the reply.
func (m *StudentManager) FinalFilter(utterance string, rowCount int, columns []string) string {
	var b strings.Builder
	b.WriteString("Decide si el resultado debe recortarse antes de responder.\n")
	b.WriteString("Reglas: \"cualquier/un alumno\" limita a 1; \"lista completa/todos\" no recorta; ")
	b.WriteString("\"sólo el nombre\" o pedir un dato puntual proyecta esas columnas; ")
	b.WriteString("entre 26 y 50 filas se muestran todas en forma compacta; ")
	b.WriteString("más de 50 filas sin pedir \"todos\" limita a 25.\n\n")
	fmt.Fprintf(&b, "PREGUNTA: %q\nFILAS: %d\nCOLUMNAS: %s\n\n", utterance, rowCount, strings.Join(columns, ", "))
	b.WriteString(filterSchema)
	b.WriteString("\n\nResponde ÚNICAMENTE con el objeto JSON:")
	return b.String()
}

// replySchema is the JSON contract of the reply + reflexion call.
const replySchema = `FORMATO DE RESPUESTA (SOLO JSON):
{
  "respuesta_usuario": "texto técnico de la respuesta",
  "reflexion_conversacional": {
    "espera_continuacion": true|false,
    "tipo_esperado": "selection|action|confirmation|specification|none",
    "datos_recordar": {"query": "...", "data": [...], "row_count": 0, "context": "..."},
    "razonamiento": "..."
  }
}
Si el SQL ejecutado NO responde la pregunta del usuario, responde con la
palabra literal VALIDACION_FALLIDA en lugar del JSON.`

// ReplyAndReflexion builds the second student call: validate the executed
// SQL against the utterance and produce the technical reply plus the
// self-reflection.
func (m *StudentManager) ReplyAndReflexion(utterance, executedSQL string, rows []models.Row) string {
	var b strings.Builder
	b.WriteString("Valida el resultado y redacta la respuesta técnica con tu reflexión conversacional.\n\n")
	fmt.Fprintf(&b, "PREGUNTA DEL USUARIO: %q\n\n", utterance)
	fmt.Fprintf(&b, "SQL EJECUTADO:\n%s\n\n", executedSQL)
	b.WriteString("FILAS (ya filtradas):\n")
	b.WriteString(RowsJSON(rows))
	b.WriteString("\n\n")
	b.WriteString(replySchema)
	b.WriteString("\n\nResponde ÚNICAMENTE con el objeto JSON (o VALIDACION_FALLIDA):")
	return b.String()
}
