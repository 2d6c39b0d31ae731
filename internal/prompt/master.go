package prompt

import (
	"fmt"
	"strings"

	"github.com/aulaflow/aulaflow/internal/catalog"
	"github.com/aulaflow/aulaflow/internal/conversation"
)

// MasterManager composes the two prompts the master sends per turn: the
// unified routing prompt at the front and the humanization prompt at the
// back.
type MasterManager struct {
	base *BaseManager
}

// NewMasterManager creates the master's prompt composer.
func NewMasterManager(base *BaseManager) *MasterManager {
	return &MasterManager{base: base}
}

// routingSchema is the JSON contract of the front call, with four worked
// examples covering each top-level intention.
const routingSchema = `FORMATO DE RESPUESTA (SOLO JSON):
{
  "intention_type": "consulta_alumnos|ayuda_sistema|conversacion_general|transformacion_pdf",
  "sub_intention": "una sub-intención registrada",
  "confidence": 0.0-1.0,
  "reasoning": "explicación breve",
  "detected_entities": {
    "nombres": ["..."],
    "filtros": ["campo: valor"],
    "limite_resultados": 0,
    "alumno_resuelto": {"id": 0, "nombre": "..."},
    "tipo_constancia": "estudios|calificaciones|traslado",
    "incluir_foto": false
  },
  "student_categorization": "busqueda|estadistica|constancia|continuacion"
}

EJEMPLOS:
1. "cuántos alumnos hay en tercer grado"
{"intention_type":"consulta_alumnos","sub_intention":"estadisticas","confidence":0.95,"reasoning":"conteo con filtro de grado","detected_entities":{"filtros":["grado: 3"]},"student_categorization":"estadistica"}
2. "de esos, los del turno vespertino"
{"intention_type":"consulta_alumnos","sub_intention":"busqueda_combinada","confidence":0.9,"reasoning":"continuación sobre el nivel previo","detected_entities":{"filtros":["turno: VESPERTINO"]},"student_categorization":"continuacion"}
3. "genera constancia de estudios para el segundo"
{"intention_type":"consulta_alumnos","sub_intention":"generar_constancia","confidence":0.92,"reasoning":"referencia posicional al nivel activo","detected_entities":{"alumno_resuelto":{"nombre":"segundo"},"tipo_constancia":"estudios"},"student_categorization":"constancia"}
4. "qué puedes hacer"
{"intention_type":"ayuda_sistema","sub_intention":"entender_capacidades","confidence":0.97,"reasoning":"consulta sobre capacidades","detected_entities":{},"student_categorization":""}`

// Routing builds the unified intent + context resolution prompt.
func (m *MasterManager) Routing(utterance string, snapshot []conversation.Level) string {
	var b strings.Builder
	b.WriteString("Eres el intérprete maestro de un asistente administrativo escolar. ")
	b.WriteString("Clasifica el mensaje del usuario y extrae sus entidades.\n\n")
	b.WriteString(m.base.SchoolBlock())
	b.WriteString("\n\n")
	b.WriteString(m.base.StackSummary(snapshot, 3))
	b.WriteString("\n\n")
	b.WriteString(catalog.PromptSection())
	b.WriteString("\n")
	b.WriteString(routingSchema)
	b.WriteString("\n\nMENSAJE DEL USUARIO: ")
	fmt.Fprintf(&b, "%q\n\nResponde ÚNICAMENTE con el objeto JSON:", utterance)
	return b.String()
}

// personaBlock fixes the assistant's voice for humanized replies.
const personaBlock = `PERSONA: eres el asistente de la dirección escolar. Hablas en español,
trato cordial y directo, sin tecnicismos. Nunca muestras SQL ni JSON al usuario.`

// Humanize builds the back-call prompt that rewrites the specialist's
// technical report into the final reply. kind is one of search, constancia,
// transformation, statistics, help, generic.
func (m *MasterManager) Humanize(kind, utterance, rowsView string, criteria []string, continuation string) string {
	var b strings.Builder
	b.WriteString(personaBlock)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "TIPO DE RESPUESTA: %s\n", kind)
	fmt.Fprintf(&b, "PREGUNTA DEL USUARIO: %q\n\n", utterance)
	b.WriteString("RESULTADOS:\n")
	b.WriteString(rowsView)
	b.WriteString("\n")
	if len(criteria) > 0 {
		fmt.Fprintf(&b, "\nCRITERIOS DETECTADOS EN LA CONSULTA: %s\n", strings.Join(criteria, "; "))
	}
	if continuation != "" {
		fmt.Fprintf(&b, "\nCONTEXTO DE CONTINUACIÓN: %s\n", continuation)
	}
	b.WriteString("\nRedacta la respuesta final para el usuario. Prosa solamente, sin JSON:")
	return b.String()
}
