package schooldb

import (
	"context"
	"fmt"

	"github.com/aulaflow/aulaflow/internal/models"
)

// studentColumns is the joined projection used for full student rows.
const studentColumns = `a.id, a.nombre, a.curp, a.matricula, a.fecha_nacimiento,
	de.grado, de.grupo, de.turno, de.ciclo_escolar, de.calificaciones`

// StudentRepository resolves student identities when the interpreters hold
// only a name fragment or an id. Read-only, like everything in this package.
type StudentRepository struct {
	exec *Executor
}

// NewStudentRepository creates a repository over the shared executor.
func NewStudentRepository(exec *Executor) *StudentRepository {
	return &StudentRepository{exec: exec}
}

// FindByNameFragment returns every student whose full name contains the
// fragment, case-insensitively.
func (r *StudentRepository) FindByNameFragment(ctx context.Context, fragment string) ([]models.Student, error) {
	query := fmt.Sprintf(`SELECT %s
		FROM alumnos a
		JOIN datos_escolares de ON de.alumno_id = a.id
		WHERE UPPER(a.nombre) LIKE '%%' || UPPER(?) || '%%'
		ORDER BY a.nombre`, studentColumns)

	res, err := r.exec.Execute(ctx, query, fragment)
	if err != nil {
		return nil, err
	}
	return studentsFromRows(res.Rows), nil
}

// FindByID returns the student with the given id, or nil when absent.
func (r *StudentRepository) FindByID(ctx context.Context, id int) (*models.Student, error) {
	query := fmt.Sprintf(`SELECT %s
		FROM alumnos a
		JOIN datos_escolares de ON de.alumno_id = a.id
		WHERE a.id = ?`, studentColumns)

	res, err := r.exec.Execute(ctx, query, id)
	if err != nil {
		return nil, err
	}
	students := studentsFromRows(res.Rows)
	if len(students) == 0 {
		return nil, nil
	}
	return &students[0], nil
}

// studentsFromRows converts generic rows to typed student records.
func studentsFromRows(rows []models.Row) []models.Student {
	out := make([]models.Student, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.Student{
			ID:              intValue(row["id"]),
			Nombre:          stringValue(row["nombre"]),
			CURP:            stringValue(row["curp"]),
			Matricula:       stringValue(row["matricula"]),
			FechaNacimiento: stringValue(row["fecha_nacimiento"]),
			Grado:           intValue(row["grado"]),
			Grupo:           stringValue(row["grupo"]),
			Turno:           stringValue(row["turno"]),
			CicloEscolar:    stringValue(row["ciclo_escolar"]),
			Calificaciones:  stringValue(row["calificaciones"]),
		})
	}
	return out
}

func stringValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func intValue(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}
