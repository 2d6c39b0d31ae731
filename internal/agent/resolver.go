package agent

import (
	"fmt"
	"strings"

	"github.com/aulaflow/aulaflow/internal/conversation"
	"github.com/aulaflow/aulaflow/internal/models"
	"github.com/aulaflow/aulaflow/internal/prompt"
)

// AmbiguityError carries the candidate rows the user must choose from when
// a contextual reference cannot be pinned to one student.
type AmbiguityError struct {
	Reason     string
	Candidates []models.Row
}

func (e *AmbiguityError) Error() string {
	return fmt.Sprintf("ambiguous reference: %s (%d candidates)", e.Reason, len(e.Candidates))
}

// ordinalWords maps positional Spanish words to stack-row indexes. -1 is
// the last row of the level.
var ordinalWords = map[string]int{
	"primero": 0, "primera": 0, "primer": 0,
	"segundo": 1, "segunda": 1,
	"tercero": 2, "tercera": 2, "tercer": 2,
	"cuarto": 3, "cuarta": 3,
	"quinto": 4, "quinta": 4,
	"sexto": 5, "sexta": 5,
	"septimo": 6, "séptimo": 6,
	"octavo": 7,
	"noveno": 8,
	"decimo": 9, "décimo": 9,
	"ultimo": -1, "último": -1, "ultima": -1, "última": -1,
}

// pronouns that point at the single row of the newest non-empty level.
var pronominalMarkers = []string{
	"él", "ella", "ese alumno", "esa alumna", "este alumno", "esta alumna",
	"dicho alumno", "el alumno anterior", "la alumna anterior",
}

// ResolveReference resolves a contextual student reference against the
// stack. Resolution order: positional word in the utterance, pronominal
// marker over a single-row level, then name-partial scan newest-first. A
// trusted full name (two or more words, no positional marker) is accepted
// verbatim without a lookup; the student resolves the id later.
func ResolveReference(utterance string, ref *models.ResolvedStudent, snapshot []conversation.Level) (*models.ResolvedStudent, *AmbiguityError) {
	if ref == nil {
		return nil, nil
	}
	if ref.ID != 0 {
		return ref, nil
	}

	lowered := strings.ToLower(utterance)
	fragment := strings.TrimSpace(ref.Nombre)

	// Positional: "el segundo", "la última"...
	if idx, ok := findOrdinal(lowered, strings.ToLower(fragment)); ok {
		level, found := conversation.NewestWithRows(snapshot)
		if !found {
			return nil, &AmbiguityError{Reason: "referencia posicional sin resultados previos"}
		}
		row, ok := rowAt(level, idx)
		if !ok {
			return nil, &AmbiguityError{
				Reason:     fmt.Sprintf("la posición pedida no existe entre %d resultados", level.RowCount),
				Candidates: level.Data,
			}
		}
		return studentFromRow(row), nil
	}

	// Pronominal: only valid when the newest non-empty level holds
	// exactly one row.
	if fragment == "" || isPronominal(lowered) {
		level, found := conversation.NewestWithRows(snapshot)
		if found && level.RowCount == 1 {
			return studentFromRow(level.Data[0]), nil
		}
		if fragment == "" {
			if !found {
				return nil, &AmbiguityError{Reason: "no hay un alumno previo al que referirse"}
			}
			return nil, &AmbiguityError{
				Reason:     "hay varios alumnos activos en el contexto",
				Candidates: level.Data,
			}
		}
	}

	// Trusted full name: accepted without lookup.
	if len(strings.Fields(fragment)) >= 2 {
		return &models.ResolvedStudent{Nombre: fragment}, nil
	}

	// Name-partial: scan levels newest-first.
	upperFrag := strings.ToUpper(fragment)
	for i := len(snapshot) - 1; i >= 0; i-- {
		var matches []models.Row
		for _, row := range snapshot[i].Data {
			nombre, _ := row["nombre"].(string)
			if nombre != "" && strings.Contains(strings.ToUpper(nombre), upperFrag) {
				matches = append(matches, row)
			}
		}
		switch len(matches) {
		case 0:
			continue
		case 1:
			return studentFromRow(matches[0]), nil
		default:
			return nil, &AmbiguityError{
				Reason:     fmt.Sprintf("%q coincide con varios alumnos del contexto", fragment),
				Candidates: matches,
			}
		}
	}

	// Nothing in the stack matched; let the student resolve the fragment
	// against the database.
	return &models.ResolvedStudent{Nombre: fragment}, nil
}

// findOrdinal looks for a positional word in the name fragment first, then
// in the whole utterance.
func findOrdinal(utterance, fragment string) (int, bool) {
	if fragment != "" {
		for _, word := range strings.Fields(fragment) {
			if idx, ok := ordinalWords[word]; ok {
				return idx, true
			}
		}
		// A real name in the fragment disables utterance scanning:
		// "constancia para Tercero Gómez" must not match "tercero".
		return 0, false
	}
	for _, word := range strings.Fields(utterance) {
		if idx, ok := ordinalWords[strings.Trim(word, ".,;")]; ok {
			return idx, true
		}
	}
	return 0, false
}

func isPronominal(lowered string) bool {
	for _, marker := range pronominalMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

// rowAt picks index idx of the level's rows; -1 is the last row. Positions
// beyond the inline rows of a regenerable level cannot be resolved here.
func rowAt(level conversation.Level, idx int) (models.Row, bool) {
	if idx == -1 {
		if len(level.Data) == 0 {
			return nil, false
		}
		if level.Regenerable() {
			return nil, false
		}
		return level.Data[len(level.Data)-1], true
	}
	if idx < 0 || idx >= len(level.Data) {
		return nil, false
	}
	return level.Data[idx], true
}

func studentFromRow(row models.Row) *models.ResolvedStudent {
	nombre, _ := row["nombre"].(string)
	id := 0
	switch v := row["id"].(type) {
	case int64:
		id = int(v)
	case int:
		id = v
	case float64:
		id = int(v)
	}
	return &models.ResolvedStudent{ID: id, Nombre: nombre}
}

// CandidateList renders ambiguity candidates as a numbered selection
// prompt.
func CandidateList(candidates []models.Row) string {
	var b strings.Builder
	for i, row := range candidates {
		fmt.Fprintf(&b, "%d. %s\n", i+1, prompt.RowDescriptor(row))
	}
	return b.String()
}
