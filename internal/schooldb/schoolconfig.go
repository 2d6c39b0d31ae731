package schooldb

import (
	"context"
	"fmt"
	"strings"
)

// SchoolConfig holds the dynamic facts about the school that are injected
// into every prompt. Grades, groups and shifts are auto-detected from the
// database at startup rather than configured by hand.
type SchoolConfig struct {
	Name          string
	TotalStudents int
	Grades        []int
	Groups        []string
	Shifts        []string
}

// DetectSchoolConfig populates the school facts by running the four
// detection queries against the database.
func DetectSchoolConfig(ctx context.Context, exec *Executor, name string) (*SchoolConfig, error) {
	cfg := &SchoolConfig{Name: name}

	res, err := exec.Execute(ctx, "SELECT COUNT(*) as total FROM alumnos")
	if err != nil {
		return nil, fmt.Errorf("detect total students: %w", err)
	}
	if len(res.Rows) > 0 {
		cfg.TotalStudents = intValue(res.Rows[0]["total"])
	}

	res, err = exec.Execute(ctx, "SELECT DISTINCT grado FROM datos_escolares WHERE grado IS NOT NULL ORDER BY grado")
	if err != nil {
		return nil, fmt.Errorf("detect grades: %w", err)
	}
	for _, row := range res.Rows {
		cfg.Grades = append(cfg.Grades, intValue(row["grado"]))
	}

	res, err = exec.Execute(ctx, "SELECT DISTINCT grupo FROM datos_escolares WHERE grupo IS NOT NULL ORDER BY grupo")
	if err != nil {
		return nil, fmt.Errorf("detect groups: %w", err)
	}
	for _, row := range res.Rows {
		cfg.Groups = append(cfg.Groups, stringValue(row["grupo"]))
	}

	res, err = exec.Execute(ctx, "SELECT DISTINCT turno FROM datos_escolares WHERE turno IS NOT NULL ORDER BY turno")
	if err != nil {
		return nil, fmt.Errorf("detect shifts: %w", err)
	}
	for _, row := range res.Rows {
		cfg.Shifts = append(cfg.Shifts, stringValue(row["turno"]))
	}

	return cfg, nil
}

// Describe renders the school facts as a prompt block.
func (c *SchoolConfig) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Escuela: %s\n", c.Name)
	fmt.Fprintf(&b, "Total de alumnos registrados: %d\n", c.TotalStudents)
	fmt.Fprintf(&b, "Grados disponibles: %s\n", joinInts(c.Grades))
	fmt.Fprintf(&b, "Grupos disponibles: %s\n", strings.Join(c.Groups, ", "))
	fmt.Fprintf(&b, "Turnos disponibles: %s", strings.Join(c.Shifts, ", "))
	return b.String()
}

func joinInts(nums []int) string {
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, ", ")
}
