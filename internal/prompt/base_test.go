package prompt

import (
	"strings"
	"testing"

	"github.com/aulaflow/aulaflow/internal/conversation"
	"github.com/aulaflow/aulaflow/internal/models"
	"github.com/aulaflow/aulaflow/internal/schooldb"
)

func testSchool() *schooldb.SchoolConfig {
	return &schooldb.SchoolConfig{
		Name:          "ESCUELA DE PRUEBA",
		TotalStudents: 211,
		Grades:        []int{1, 2, 3},
		Groups:        []string{"A", "B"},
		Shifts:        []string{"MATUTINO", "VESPERTINO"},
	}
}

// TestStackSummaryEmpty marks the first turn explicitly.
func TestStackSummaryEmpty(t *testing.T) {
	m := NewBaseManager(testSchool())
	got := m.StackSummary(nil, 3)
	if !strings.Contains(got, "vacío") {
		t.Errorf("summary = %q", got)
	}
}

// TestStackSummaryNewestFirst renders recent levels first with priority and
// awaiting state.
func TestStackSummaryNewestFirst(t *testing.T) {
	m := NewBaseManager(testSchool())
	snapshot := []conversation.Level{
		{ID: 1, Query: "antigua", Priority: 0.63, RowCount: 1,
			Data: []models.Row{{"id": 1, "nombre": "ANA"}}},
		{ID: 2, Query: "reciente", Priority: 0.9, RowCount: 1,
			Data: []models.Row{{"id": 2, "nombre": "BRUNO"}}, Awaiting: models.AwaitingSelection},
	}

	got := m.StackSummary(snapshot, 3)
	recentIdx := strings.Index(got, "reciente")
	oldIdx := strings.Index(got, "antigua")
	if recentIdx == -1 || oldIdx == -1 || recentIdx > oldIdx {
		t.Errorf("levels out of order:\n%s", got)
	}
	if !strings.Contains(got, "espera: selection") {
		t.Errorf("awaiting state missing:\n%s", got)
	}
	if !strings.Contains(got, "0.90") {
		t.Errorf("priority missing:\n%s", got)
	}
}

// TestStackSummaryRegenerable notes the recoverable remainder of truncated
// levels.
func TestStackSummaryRegenerable(t *testing.T) {
	m := NewBaseManager(testSchool())
	snapshot := []conversation.Level{{
		ID: 1, Query: "grandes", RowCount: 42, SQL: "SELECT 1",
		Data: []models.Row{{"id": 1, "nombre": "ANA"}},
	}}

	got := m.StackSummary(snapshot, 1)
	if !strings.Contains(got, "41 filas más") {
		t.Errorf("regenerable note missing:\n%s", got)
	}
}

// TestRowDescriptor renders the compact row line.
func TestRowDescriptor(t *testing.T) {
	row := models.Row{"id": 7, "nombre": "ANA LOPEZ", "grado": 3, "grupo": "A", "turno": "MATUTINO"}
	got := RowDescriptor(row)
	for _, want := range []string{"id=7", "ANA LOPEZ", "3°A", "MATUTINO"} {
		if !strings.Contains(got, want) {
			t.Errorf("descriptor %q missing %q", got, want)
		}
	}
}

// TestRowsExemplar caps the sample at three rows plus the remainder.
func TestRowsExemplar(t *testing.T) {
	rows := []models.Row{
		{"id": 1, "nombre": "A"}, {"id": 2, "nombre": "B"},
		{"id": 3, "nombre": "C"}, {"id": 4, "nombre": "D"},
	}
	got := RowsExemplar(rows, 25)
	if !strings.Contains(got, "25 resultados") {
		t.Errorf("total missing: %q", got)
	}
	if !strings.Contains(got, "y 22 más") {
		t.Errorf("remainder wrong: %q", got)
	}
	if strings.Contains(got, "id=4") {
		t.Errorf("exemplar not capped: %q", got)
	}

	if got := RowsExemplar(nil, 0); !strings.Contains(got, "sin resultados") {
		t.Errorf("empty view = %q", got)
	}
}

// TestRoutingPromptCarriesCatalogueAndSchool checks the front prompt has
// everything the router needs.
func TestRoutingPromptCarriesCatalogueAndSchool(t *testing.T) {
	m := NewMasterManager(NewBaseManager(testSchool()))
	got := m.Routing("¿cuántos alumnos hay?", nil)

	for _, want := range []string{
		"ESCUELA DE PRUEBA",
		"consulta_alumnos",
		"intention_type",
		"¿cuántos alumnos hay?",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("routing prompt missing %q", want)
		}
	}

	// The schema and every worked example must use the key the intent
	// decoder fills its typed field from.
	if !strings.Contains(got, `"student_categorization"`) {
		t.Error("routing prompt missing the categorization key")
	}
	if strings.Contains(got, "student_categorizacion") {
		t.Error("routing prompt carries a misspelled categorization key")
	}
}

// TestActionPromptWarnsAboutFullIDList checks the student prompt carries
// the no-truncation warning when a level is active.
func TestActionPromptWarnsAboutFullIDList(t *testing.T) {
	m := NewStudentManager(NewBaseManager(testSchool()))
	snapshot := []conversation.Level{{
		ID: 1, Query: "todos", RowCount: 83,
		Data: []models.Row{{"id": 1, "nombre": "ANA"}},
	}}

	intent := &models.Intention{Type: models.IntentionConsultaAlumnos, SubIntention: "busqueda_combinada"}
	got := m.ActionSelection(intent, "de esos, los de tercero", snapshot)
	if !strings.Contains(got, "TODOS los 83 ids") {
		t.Errorf("id warning missing:\n%s", got)
	}
	if !strings.Contains(got, "BUSCAR_UNIVERSAL") {
		t.Error("action catalogue missing")
	}
	if !strings.Contains(got, "ESQUEMA") {
		t.Error("schema block missing")
	}
}

// TestReplyPromptCarriesValidationEscape checks the literal escape word is
// offered.
func TestReplyPromptCarriesValidationEscape(t *testing.T) {
	m := NewStudentManager(NewBaseManager(testSchool()))
	got := m.ReplyAndReflexion("pregunta", "SELECT 1", nil)
	if !strings.Contains(got, "VALIDACION_FALLIDA") {
		t.Error("validation escape missing")
	}
	if !strings.Contains(got, "reflexion_conversacional") {
		t.Error("reflexion contract missing")
	}
}
