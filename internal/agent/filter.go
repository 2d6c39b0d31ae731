package agent

import (
	"strings"

	"github.com/aulaflow/aulaflow/internal/models"
)

// FilterDecision is the outcome of the final-filter pass: an optional row
// cap and an optional column projection applied before reply generation.
type FilterDecision struct {
	Accion string   `json:"accion"` // nada | limitar | proyectar | compactar
	Limite int      `json:"limite,omitempty"`
	Campos []string `json:"campos,omitempty"`
}

// compactColumns is the projection used for mid-sized result sets: every
// row is shown, but only as a short descriptor.
var compactColumns = []string{"id", "nombre", "grado", "grupo", "turno"}

// singleRowCues cap the result at one row.
var singleRowCues = []string{"cualquier alumno", "un alumno", "alguna alumna", "cualquier alumna", "algún alumno"}

// fullListCues disable every cap.
var fullListCues = []string{"lista completa", "todos", "todas", "completa"}

// projectionCues map utterance fragments to column projections.
var projectionCues = map[string][]string{
	"sólo el nombre":      {"nombre"},
	"solo el nombre":      {"nombre"},
	"solamente el nombre": {"nombre"},
	"la curp":             {"nombre", "curp"},
	"curp de":             {"nombre", "curp"},
	"la matrícula":        {"nombre", "matricula"},
	"la matricula":        {"nombre", "matricula"},
}

// RuleFilterDecision derives the deterministic filter from utterance cues
// and result size. It is both the fallback when the advisory LLM call fails
// and the validator for whatever the LLM suggests.
func RuleFilterDecision(utterance string, rowCount int) FilterDecision {
	lowered := strings.ToLower(utterance)

	for cue, campos := range projectionCues {
		if strings.Contains(lowered, cue) {
			return FilterDecision{Accion: "proyectar", Campos: campos}
		}
	}
	for _, cue := range singleRowCues {
		if strings.Contains(lowered, cue) {
			return FilterDecision{Accion: "limitar", Limite: 1}
		}
	}
	for _, cue := range fullListCues {
		if strings.Contains(lowered, cue) {
			return FilterDecision{Accion: "nada"}
		}
	}

	// 1-25 rows are shown whole, 26-50 whole but compacted to short
	// descriptors, bigger sets are cut to 25 unless the user asked for
	// everything.
	if rowCount > 50 {
		return FilterDecision{Accion: "limitar", Limite: 25}
	}
	if rowCount > 25 {
		return FilterDecision{Accion: "compactar"}
	}
	return FilterDecision{Accion: "nada"}
}

// ApplyFilter executes a decision over the rows.
func ApplyFilter(rows []models.Row, d FilterDecision) []models.Row {
	switch d.Accion {
	case "limitar":
		if d.Limite > 0 && len(rows) > d.Limite {
			return rows[:d.Limite]
		}
		return rows

	case "proyectar":
		if len(d.Campos) == 0 {
			return rows
		}
		return project(rows, d.Campos)

	case "compactar":
		return project(rows, compactColumns)

	default:
		return rows
	}
}

func project(rows []models.Row, campos []string) []models.Row {
	out := make([]models.Row, len(rows))
	for i, row := range rows {
		projected := make(models.Row, len(campos))
		for _, campo := range campos {
			if v, ok := row[campo]; ok {
				projected[campo] = v
			}
		}
		out[i] = projected
	}
	return out
}

// mergeFilterDecision keeps the LLM suggestion only when it does not
// contradict the rule-based one; the deterministic rules win on conflict.
func mergeFilterDecision(rule, llm FilterDecision) FilterDecision {
	if rule.Accion != "nada" {
		return rule
	}
	switch llm.Accion {
	case "limitar":
		if llm.Limite > 0 {
			return llm
		}
	case "proyectar":
		if len(llm.Campos) > 0 {
			return llm
		}
	}
	return rule
}
