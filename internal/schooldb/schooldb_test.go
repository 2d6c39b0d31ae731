package schooldb

import (
	"context"
	"database/sql"
	"errors"
	"testing"
)

const fixtureSchema = `
CREATE TABLE alumnos (
	id INTEGER PRIMARY KEY,
	nombre TEXT NOT NULL,
	curp TEXT,
	matricula TEXT,
	fecha_nacimiento TEXT
);
CREATE TABLE datos_escolares (
	id INTEGER PRIMARY KEY,
	alumno_id INTEGER NOT NULL REFERENCES alumnos(id),
	ciclo_escolar TEXT,
	grado INTEGER,
	grupo TEXT,
	turno TEXT,
	calificaciones TEXT NOT NULL DEFAULT '[]'
);
`

const fixtureData = `
INSERT INTO alumnos VALUES
	(1, 'MARIA GARCIA LOPEZ', 'GALM150304MDFRRA01', 'A-001', '2015-03-04'),
	(2, 'JUAN CARLOS HERNANDEZ', 'HEJJ160515HDFRRN08', 'A-002', '2016-05-15'),
	(3, 'MARIA FERNANDA TORRES', 'TOFM150820MDFRRR05', 'A-003', '2015-08-20'),
	(4, 'PEDRO SANCHEZ RUIZ', 'SARP140102HDFNZD09', 'A-004', '2014-01-02');
INSERT INTO datos_escolares (alumno_id, ciclo_escolar, grado, grupo, turno, calificaciones) VALUES
	(1, '2024-2025', 3, 'A', 'MATUTINO',
	 '[{"nombre":"Matemáticas","promedio":9.5},{"nombre":"Español","promedio":8.7}]'),
	(2, '2024-2025', 3, 'B', 'MATUTINO',
	 '[{"nombre":"Matemáticas","promedio":7.0},{"nombre":"Español","promedio":8.0}]'),
	(3, '2024-2025', 2, 'A', 'VESPERTINO', '[]'),
	(4, '2024-2025', 1, 'A', 'MATUTINO', '[]');
`

func openFixture(t *testing.T) *Executor {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec(fixtureSchema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	if _, err := db.Exec(fixtureData); err != nil {
		t.Fatalf("seed data: %v", err)
	}
	return NewExecutor(db)
}

// TestIsSelect covers the read-only guard.
func TestIsSelect(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{"SELECT * FROM alumnos", true},
		{"  select id from alumnos", true},
		{"-- comentario\nSELECT 1", true},
		{"SELECT 1;", true},
		{"INSERT INTO alumnos VALUES (1)", false},
		{"UPDATE alumnos SET nombre = 'X'", false},
		{"DELETE FROM alumnos", false},
		{"DROP TABLE alumnos", false},
		{"SELECT 1; DROP TABLE alumnos", false},
		{"-- solo comentario", false},
	}

	for _, tt := range tests {
		if got := IsSelect(tt.query); got != tt.want {
			t.Errorf("IsSelect(%q) = %v, want %v", tt.query, got, tt.want)
		}
	}
}

// TestExecuteRejectsWrites checks the executor refuses mutations before
// touching the database.
func TestExecuteRejectsWrites(t *testing.T) {
	exec := openFixture(t)
	_, err := exec.Execute(context.Background(), "DELETE FROM alumnos")
	if !errors.Is(err, ErrNotSelect) {
		t.Fatalf("error = %v, want ErrNotSelect", err)
	}
}

// TestExecuteMaterializesRows checks row materialization and byte-slice
// normalization.
func TestExecuteMaterializesRows(t *testing.T) {
	exec := openFixture(t)
	res, err := exec.Execute(context.Background(), "SELECT id, nombre FROM alumnos ORDER BY id")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.RowCount != 4 {
		t.Fatalf("row count = %d, want 4", res.RowCount)
	}
	if got, ok := res.Rows[0]["nombre"].(string); !ok || got != "MARIA GARCIA LOPEZ" {
		t.Errorf("first name = %v", res.Rows[0]["nombre"])
	}
}

// TestExecuteJSONAverage runs the JSON1 grade average over the grade book
// column.
func TestExecuteJSONAverage(t *testing.T) {
	exec := openFixture(t)
	query := `SELECT a.nombre, AVG(CAST(JSON_EXTRACT(materia.value, '$.promedio') AS REAL)) as promedio_general
FROM alumnos a
JOIN datos_escolares de ON de.alumno_id = a.id, JSON_EACH(de.calificaciones) AS materia
WHERE a.id = 1
GROUP BY a.id`
	res, err := exec.Execute(context.Background(), query)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.RowCount != 1 {
		t.Fatalf("row count = %d, want 1", res.RowCount)
	}
	avg, ok := res.Rows[0]["promedio_general"].(float64)
	if !ok {
		t.Fatalf("promedio_general type = %T", res.Rows[0]["promedio_general"])
	}
	if avg < 9.09 || avg > 9.11 {
		t.Errorf("average = %f, want 9.1", avg)
	}
}

// TestExecuteEmptyGradeBook checks '[]' means no grades, not zero grades.
func TestExecuteEmptyGradeBook(t *testing.T) {
	exec := openFixture(t)
	res, err := exec.Execute(context.Background(),
		"SELECT a.id FROM alumnos a JOIN datos_escolares de ON de.alumno_id = a.id WHERE de.calificaciones != '[]' ORDER BY a.id")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.RowCount != 2 {
		t.Fatalf("students with grades = %d, want 2", res.RowCount)
	}
}

// TestStudentRepository covers name-fragment and id lookups.
func TestStudentRepository(t *testing.T) {
	exec := openFixture(t)
	repo := NewStudentRepository(exec)
	ctx := context.Background()

	matches, err := repo.FindByNameFragment(ctx, "maria")
	if err != nil {
		t.Fatalf("FindByNameFragment: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("matches = %d, want 2", len(matches))
	}

	matches, err = repo.FindByNameFragment(ctx, "PEDRO SANCHEZ")
	if err != nil {
		t.Fatalf("FindByNameFragment: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != 4 {
		t.Fatalf("unexpected match set %+v", matches)
	}
	if matches[0].Grado != 1 || matches[0].Grupo != "A" {
		t.Errorf("school data not joined: %+v", matches[0])
	}

	student, err := repo.FindByID(ctx, 2)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if student == nil || student.Nombre != "JUAN CARLOS HERNANDEZ" {
		t.Errorf("student = %+v", student)
	}

	missing, err := repo.FindByID(ctx, 99)
	if err != nil {
		t.Fatalf("FindByID(99): %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown id, got %+v", missing)
	}
}

// TestDetectSchoolConfig auto-detects grades, groups and shifts.
func TestDetectSchoolConfig(t *testing.T) {
	exec := openFixture(t)
	cfg, err := DetectSchoolConfig(context.Background(), exec, "ESCUELA DE PRUEBA")
	if err != nil {
		t.Fatalf("DetectSchoolConfig: %v", err)
	}
	if cfg.TotalStudents != 4 {
		t.Errorf("total students = %d, want 4", cfg.TotalStudents)
	}
	if len(cfg.Grades) != 3 || cfg.Grades[0] != 1 || cfg.Grades[2] != 3 {
		t.Errorf("grades = %v", cfg.Grades)
	}
	if len(cfg.Groups) != 2 {
		t.Errorf("groups = %v", cfg.Groups)
	}
	if len(cfg.Shifts) != 2 {
		t.Errorf("shifts = %v", cfg.Shifts)
	}
}
