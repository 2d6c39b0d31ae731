package agent

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Criterion is one search predicate as selected by the LLM.
type Criterion struct {
	Tabla    string `json:"tabla"`
	Campo    string `json:"campo"`
	Operador string `json:"operador"`
	Valor    any    `json:"valor"`
}

// SearchParams parameterize BUSCAR_UNIVERSAL and CONTAR_UNIVERSAL.
type SearchParams struct {
	CriterioPrincipal  *Criterion  `json:"criterio_principal"`
	FiltrosAdicionales []Criterion `json:"filtros_adicionales"`
	CamposSolicitados  []string    `json:"campos_solicitados"`
	Limite             int         `json:"limite"`
}

// StatsParams parameterize CALCULAR_ESTADISTICA.
type StatsParams struct {
	Tipo       string `json:"tipo"` // conteo | distribucion | promedio
	AgruparPor string `json:"agrupar_por"`
	Filtro     string `json:"filtro"` // "campo: valor"
	Campo      string `json:"campo"`
}

// GradesFilterParams parameterize FILTRAR_POR_CALIFICACIONES.
type GradesFilterParams struct {
	ConCalificaciones bool `json:"con_calificaciones"`
}

// defaultColumns is the projection used when the LLM requests no specific
// fields.
const defaultColumns = "a.id, a.nombre, a.curp, a.matricula, de.grado, de.grupo, de.turno"

const baseFrom = "FROM alumnos a JOIN datos_escolares de ON de.alumno_id = a.id"

// BuildSearch renders the BUSCAR_UNIVERSAL template. ctxIDs, when present,
// restrict the search to the ids carried over from the active stack level;
// the full list is always embedded, never truncated.
func BuildSearch(p *SearchParams, ctxIDs []int) (string, error) {
	conds, err := allConditions(p)
	if err != nil {
		return "", err
	}
	conds = appendContextIDs(conds, ctxIDs)
	if len(conds) == 0 {
		return "", fmt.Errorf("sqlgen: search without criteria")
	}

	cols := defaultColumns
	if len(p.CamposSolicitados) > 0 {
		mapped, err := mapColumns(p.CamposSolicitados)
		if err != nil {
			return "", err
		}
		cols = mapped
	}

	sql := fmt.Sprintf("SELECT %s %s WHERE %s ORDER BY a.nombre", cols, baseFrom, strings.Join(conds, " AND "))
	if p.Limite > 0 {
		sql += fmt.Sprintf(" LIMIT %d", p.Limite)
	}
	return sql, nil
}

// BuildCount renders the CONTAR_UNIVERSAL template.
func BuildCount(p *SearchParams, ctxIDs []int) (string, error) {
	conds, err := allConditions(p)
	if err != nil {
		return "", err
	}
	conds = appendContextIDs(conds, ctxIDs)
	if len(conds) == 0 {
		return "SELECT COUNT(*) as total FROM alumnos", nil
	}
	return fmt.Sprintf("SELECT COUNT(DISTINCT a.id) as total %s WHERE %s", baseFrom, strings.Join(conds, " AND ")), nil
}

// BuildStatistic renders the CALCULAR_ESTADISTICA templates.
func BuildStatistic(p *StatsParams, ctxIDs []int) (string, error) {
	switch strings.ToLower(strings.TrimSpace(p.Tipo)) {
	case "conteo":
		cond, err := filterCondition(p.Filtro)
		if err != nil {
			return "", err
		}
		conds := appendContextIDs(cond, ctxIDs)
		if len(conds) == 0 {
			return "SELECT COUNT(*) as total FROM alumnos", nil
		}
		return fmt.Sprintf("SELECT COUNT(DISTINCT a.id) as total %s WHERE %s", baseFrom, strings.Join(conds, " AND ")), nil

	case "distribucion":
		col, err := groupColumn(p.AgruparPor)
		if err != nil {
			return "", err
		}
		cond, err := filterCondition(p.Filtro)
		if err != nil {
			return "", err
		}
		conds := appendContextIDs(cond, ctxIDs)
		where := ""
		if len(conds) > 0 {
			where = " WHERE " + strings.Join(conds, " AND ")
		}
		return fmt.Sprintf("SELECT %s, COUNT(DISTINCT a.id) as cantidad %s%s GROUP BY %s ORDER BY %s",
			col, baseFrom, where, col, col), nil

	case "promedio":
		return buildAverage(p, ctxIDs)

	default:
		return "", fmt.Errorf("sqlgen: unknown statistic type %q", p.Tipo)
	}
}

// buildAverage computes averages over the JSON grade book. The per-subject
// grades live as a JSON array inside datos_escolares.calificaciones, so the
// lateral JSON_EACH join is mandatory here.
func buildAverage(p *StatsParams, ctxIDs []int) (string, error) {
	conds := []string{"de.calificaciones != '[]'", "de.calificaciones IS NOT NULL"}
	if extra, err := filterCondition(p.Filtro); err != nil {
		return "", err
	} else {
		conds = append(conds, extra...)
	}
	conds = appendContextIDs(conds, ctxIDs)
	where := strings.Join(conds, " AND ")

	if strings.EqualFold(p.AgruparPor, "alumno") || strings.EqualFold(p.AgruparPor, "alumno_id") {
		return fmt.Sprintf(`SELECT a.id, a.nombre, AVG(CAST(JSON_EXTRACT(materia.value, '$.promedio') AS REAL)) as promedio %s, JSON_EACH(de.calificaciones) AS materia WHERE %s GROUP BY a.id ORDER BY a.nombre`,
			baseFrom, where), nil
	}
	return fmt.Sprintf(`SELECT AVG(CAST(JSON_EXTRACT(materia.value, '$.promedio') AS REAL)) as promedio_general %s, JSON_EACH(de.calificaciones) AS materia WHERE %s`,
		baseFrom, where), nil
}

// BuildGradesFilter renders the FILTRAR_POR_CALIFICACIONES template.
func BuildGradesFilter(conCalificaciones bool, ctxIDs []int) string {
	cond := "de.calificaciones = '[]' OR de.calificaciones IS NULL"
	if conCalificaciones {
		cond = "de.calificaciones != '[]' AND de.calificaciones IS NOT NULL"
	}
	conds := appendContextIDs([]string{"(" + cond + ")"}, ctxIDs)
	return fmt.Sprintf("SELECT %s %s WHERE %s ORDER BY a.nombre", defaultColumns, baseFrom, strings.Join(conds, " AND "))
}

// allConditions renders the principal criterion plus the additional
// filters.
func allConditions(p *SearchParams) ([]string, error) {
	var conds []string
	if p.CriterioPrincipal != nil {
		c, err := condition(*p.CriterioPrincipal)
		if err != nil {
			return nil, err
		}
		conds = append(conds, c)
	}
	for _, f := range p.FiltrosAdicionales {
		c, err := condition(f)
		if err != nil {
			return nil, err
		}
		conds = append(conds, c)
	}
	return conds, nil
}

var yearPattern = regexp.MustCompile(`^\d{4}$`)

// condition maps one criterion onto the enforced field mappings. The
// mappings are deterministic; the LLM proposes fields, never SQL.
func condition(c Criterion) (string, error) {
	campo := strings.ToLower(strings.TrimSpace(c.Campo))
	op := strings.ToUpper(strings.TrimSpace(c.Operador))
	if op == "" {
		op = "="
	}

	switch campo {
	case "nombre":
		// Name search is always a partial match on the full-name column.
		return fmt.Sprintf("a.nombre LIKE '%%%s%%'", escapeLiteral(asString(c.Valor))), nil

	case "grado":
		n, err := asInt(c.Valor)
		if err != nil {
			return "", fmt.Errorf("sqlgen: grado must be numeric: %w", err)
		}
		return fmt.Sprintf("de.grado %s %d", binaryOp(op), n), nil

	case "grupo":
		return fmt.Sprintf("de.grupo %s '%s'", binaryOp(op), escapeLiteral(strings.ToUpper(asString(c.Valor)))), nil

	case "turno":
		return fmt.Sprintf("de.turno %s '%s'", binaryOp(op), escapeLiteral(strings.ToUpper(asString(c.Valor)))), nil

	case "fecha_nacimiento", "año_nacimiento", "anio_nacimiento":
		v := asString(c.Valor)
		if yearPattern.MatchString(v) {
			return fmt.Sprintf("a.fecha_nacimiento LIKE '%s%%'", v), nil
		}
		return fmt.Sprintf("a.fecha_nacimiento %s '%s'", binaryOp(op), escapeLiteral(v)), nil

	case "calificaciones":
		if hasGrades(c.Valor) {
			return "(de.calificaciones != '[]' AND de.calificaciones IS NOT NULL)", nil
		}
		return "(de.calificaciones = '[]' OR de.calificaciones IS NULL)", nil

	case "id", "alumno_id":
		switch op {
		case "IN", "NOT IN":
			list, err := asIntList(c.Valor)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("a.id %s (%s)", op, joinInts(list)), nil
		default:
			n, err := asInt(c.Valor)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("a.id %s %d", binaryOp(op), n), nil
		}

	case "curp", "matricula", "ciclo_escolar":
		col := "a." + campo
		if campo == "ciclo_escolar" {
			col = "de.ciclo_escolar"
		}
		if op == "LIKE" {
			return fmt.Sprintf("%s LIKE '%%%s%%'", col, escapeLiteral(asString(c.Valor))), nil
		}
		return fmt.Sprintf("%s %s '%s'", col, binaryOp(op), escapeLiteral(asString(c.Valor))), nil

	default:
		return "", fmt.Errorf("sqlgen: unknown field %q", c.Campo)
	}
}

// filterCondition parses the "campo: valor" filter shorthand used by the
// statistics action.
func filterCondition(filtro string) ([]string, error) {
	filtro = strings.TrimSpace(filtro)
	if filtro == "" {
		return nil, nil
	}
	var conds []string
	for _, part := range strings.Split(filtro, ",") {
		kv := strings.SplitN(part, ":", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("sqlgen: malformed filter %q", part)
		}
		c, err := condition(Criterion{
			Campo:    strings.TrimSpace(kv[0]),
			Operador: "=",
			Valor:    strings.TrimSpace(kv[1]),
		})
		if err != nil {
			return nil, err
		}
		conds = append(conds, c)
	}
	return conds, nil
}

// appendContextIDs adds the continuation predicate with every id from the
// active stack level.
func appendContextIDs(conds []string, ids []int) []string {
	if len(ids) == 0 {
		return conds
	}
	return append(conds, fmt.Sprintf("a.id IN (%s)", joinInts(ids)))
}

func groupColumn(agruparPor string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(agruparPor)) {
	case "grado":
		return "de.grado", nil
	case "grupo":
		return "de.grupo", nil
	case "turno":
		return "de.turno", nil
	default:
		return "", fmt.Errorf("sqlgen: cannot group by %q", agruparPor)
	}
}

// columnAliases maps requested projection names onto qualified columns.
var columnAliases = map[string]string{
	"id":               "a.id",
	"nombre":           "a.nombre",
	"curp":             "a.curp",
	"matricula":        "a.matricula",
	"fecha_nacimiento": "a.fecha_nacimiento",
	"grado":            "de.grado",
	"grupo":            "de.grupo",
	"turno":            "de.turno",
	"ciclo_escolar":    "de.ciclo_escolar",
}

func mapColumns(fields []string) (string, error) {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		col, ok := columnAliases[strings.ToLower(strings.TrimSpace(f))]
		if !ok {
			return "", fmt.Errorf("sqlgen: unknown column %q", f)
		}
		out = append(out, col)
	}
	return strings.Join(out, ", "), nil
}

func binaryOp(op string) string {
	switch op {
	case "=", "!=", ">", "<", ">=", "<=":
		return op
	default:
		return "="
	}
}

// escapeLiteral doubles single quotes and strips statement terminators so
// embedded literals cannot break out of the template.
func escapeLiteral(v string) string {
	v = strings.ReplaceAll(v, "'", "''")
	v = strings.ReplaceAll(v, ";", "")
	return v
}

func asString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		if val == float64(int(val)) {
			return strconv.Itoa(int(val))
		}
		return fmt.Sprint(val)
	case nil:
		return ""
	default:
		return fmt.Sprint(val)
	}
}

func asInt(v any) (int, error) {
	switch val := v.(type) {
	case float64:
		return int(val), nil
	case int:
		return val, nil
	case int64:
		return int(val), nil
	case json.Number:
		n, err := val.Int64()
		return int(n), err
	case string:
		return strconv.Atoi(strings.TrimSpace(val))
	default:
		return 0, fmt.Errorf("not a number: %v", v)
	}
}

func asIntList(v any) ([]int, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("sqlgen: expected a list, got %T", v)
	}
	out := make([]int, 0, len(list))
	for _, item := range list {
		n, err := asInt(item)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// hasGrades interprets the calificaciones criterion value.
func hasGrades(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		s := strings.ToLower(strings.TrimSpace(val))
		return s == "con" || s == "true" || s == "si" || s == "sí"
	default:
		return false
	}
}

func joinInts(nums []int) string {
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ", ")
}
