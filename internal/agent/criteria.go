package agent

import (
	"fmt"
	"regexp"
	"strings"
)

// criteriaPatterns recognize the WHERE-clause fragments the templates emit.
// The humanization prompt receives the human description of every match so
// the final reply can name the criteria that were actually applied.
var criteriaPatterns = []struct {
	re       *regexp.Regexp
	describe func(m []string) string
}{
	{
		re:       regexp.MustCompile(`(?i)a\.nombre\s+LIKE\s+'%([^%']+)%'`),
		describe: func(m []string) string { return fmt.Sprintf("nombre contiene %q", m[1]) },
	},
	{
		re:       regexp.MustCompile(`(?i)de\.grado\s*=\s*(\d+)`),
		describe: func(m []string) string { return fmt.Sprintf("grado %s", m[1]) },
	},
	{
		re:       regexp.MustCompile(`(?i)de\.grupo\s*=\s*'([^']+)'`),
		describe: func(m []string) string { return fmt.Sprintf("grupo %s", m[1]) },
	},
	{
		re:       regexp.MustCompile(`(?i)de\.turno\s*=\s*'([^']+)'`),
		describe: func(m []string) string { return fmt.Sprintf("turno %s", strings.ToLower(m[1])) },
	},
	{
		re:       regexp.MustCompile(`(?i)a\.fecha_nacimiento\s+LIKE\s+'(\d{4})%'`),
		describe: func(m []string) string { return fmt.Sprintf("nacidos en %s", m[1]) },
	},
	{
		re:       regexp.MustCompile(`(?i)de\.calificaciones\s*!=\s*'\[\]'`),
		describe: func(m []string) string { return "con calificaciones registradas" },
	},
	{
		re:       regexp.MustCompile(`(?i)de\.calificaciones\s*=\s*'\[\]'`),
		describe: func(m []string) string { return "sin calificaciones" },
	},
	{
		re: regexp.MustCompile(`(?i)a\.id\s+IN\s+\(([^)]+)\)`),
		describe: func(m []string) string {
			n := len(strings.Split(m[1], ","))
			return fmt.Sprintf("continuación sobre %d alumnos del contexto", n)
		},
	},
}

// ExtractCriteria regex-parses the executed SQL's WHERE clause and returns
// human descriptions of the recognized criteria.
func ExtractCriteria(executedSQL string) []string {
	idx := strings.Index(strings.ToUpper(executedSQL), "WHERE")
	if idx == -1 {
		return nil
	}
	where := executedSQL[idx:]

	var out []string
	for _, p := range criteriaPatterns {
		if m := p.re.FindStringSubmatch(where); m != nil {
			out = append(out, p.describe(m))
		}
	}
	return out
}
