package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aulaflow/aulaflow/internal/conversation"
	"github.com/aulaflow/aulaflow/internal/models"
	"github.com/aulaflow/aulaflow/internal/schooldb"
)

// SchemaBlock is the compact database description injected into the
// student's prompts: table names, columns, the FK and the enumerated
// values. The full data dictionary is deliberately never sent.
const SchemaBlock = `ESQUEMA (compacto):
alumnos(id, nombre, curp, matricula, fecha_nacimiento)
datos_escolares(id, alumno_id -> alumnos.id, ciclo_escolar, grado, grupo, turno, calificaciones)
- calificaciones es un arreglo JSON: [{"nombre": materia, "promedio": real}, ...]; '[]' significa sin calificaciones
- turno: MATUTINO | VESPERTINO; grupo: letra; grado: entero`

// StackLevelRows caps the row descriptors rendered per stack level.
const StackLevelRows = 10

// BaseManager composes the blocks shared by every prompt: the school
// identity and the conversation-stack summary.
type BaseManager struct {
	school *schooldb.SchoolConfig
}

// NewBaseManager creates the shared composer.
func NewBaseManager(school *schooldb.SchoolConfig) *BaseManager {
	return &BaseManager{school: school}
}

// SchoolBlock renders the school identity section.
func (m *BaseManager) SchoolBlock() string {
	return "CONTEXTO ESCOLAR:\n" + m.school.Describe()
}

// School exposes the underlying config for deterministic replies.
func (m *BaseManager) School() *schooldb.SchoolConfig {
	return m.school
}

// StackSummary renders the top n levels of the stack, newest first, with
// priority, awaiting hint and up to StackLevelRows row descriptors each.
func (m *BaseManager) StackSummary(snapshot []conversation.Level, n int) string {
	if len(snapshot) == 0 {
		return "CONTEXTO CONVERSACIONAL: (vacío, primera consulta)"
	}

	var b strings.Builder
	b.WriteString("CONTEXTO CONVERSACIONAL (niveles recientes primero):\n")
	count := 0
	for i := len(snapshot) - 1; i >= 0 && count < n; i-- {
		level := snapshot[i]
		count++
		fmt.Fprintf(&b, "Nivel %d (prioridad %.2f, espera: %s): %q — %d filas\n",
			level.ID, level.Priority, level.Awaiting, level.Query, level.RowCount)
		for j, row := range level.Data {
			if j >= StackLevelRows {
				break
			}
			fmt.Fprintf(&b, "  [%d] %s\n", j+1, RowDescriptor(row))
		}
		if level.Regenerable() {
			fmt.Fprintf(&b, "  (... %d filas más, recuperables con el SQL almacenado)\n",
				level.RowCount-len(level.Data))
		}
	}
	return b.String()
}

// RowDescriptor renders one row as "id | nombre | grado grupo | turno",
// tolerating missing columns.
func RowDescriptor(row models.Row) string {
	parts := make([]string, 0, 4)
	if id, ok := row["id"]; ok {
		parts = append(parts, fmt.Sprintf("id=%v", id))
	}
	if nombre, ok := row["nombre"]; ok {
		parts = append(parts, fmt.Sprint(nombre))
	}
	if grado, ok := row["grado"]; ok {
		g := fmt.Sprintf("%v°", grado)
		if grupo, ok := row["grupo"]; ok {
			g += fmt.Sprint(grupo)
		}
		parts = append(parts, g)
	}
	if turno, ok := row["turno"]; ok {
		parts = append(parts, fmt.Sprint(turno))
	}
	if len(parts) == 0 {
		data, _ := json.Marshal(row)
		return string(data)
	}
	return strings.Join(parts, " | ")
}

// RowsJSON renders rows as indented JSON for prompts that need the full
// filtered result set.
func RowsJSON(rows []models.Row) string {
	if len(rows) == 0 {
		return "[]"
	}
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(data)
}

// RowsExemplar renders at most three exemplar rows plus the total count,
// the compact view the humanization prompt uses.
func RowsExemplar(rows []models.Row, total int) string {
	if total == 0 {
		return "(sin resultados)"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d resultados en total.", total)
	limit := len(rows)
	if limit > 3 {
		limit = 3
	}
	for i := 0; i < limit; i++ {
		fmt.Fprintf(&b, "\n- %s", RowDescriptor(rows[i]))
	}
	if total > limit {
		fmt.Fprintf(&b, "\n- ... y %d más", total-limit)
	}
	return b.String()
}
