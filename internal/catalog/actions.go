package catalog

import (
	"fmt"
	"strings"
)

// ActionCode names a parametric capability the student may invoke.
type ActionCode string

const (
	ActionBuscarUniversal       ActionCode = "BUSCAR_UNIVERSAL"
	ActionContarUniversal       ActionCode = "CONTAR_UNIVERSAL"
	ActionCalcularEstadistica   ActionCode = "CALCULAR_ESTADISTICA"
	ActionGenerarConstancia     ActionCode = "GENERAR_CONSTANCIA_COMPLETA"
	ActionTransformarPDF        ActionCode = "TRANSFORMAR_PDF"
	ActionFiltrarCalificaciones ActionCode = "FILTRAR_POR_CALIFICACIONES"
)

// ParamSpec documents one parameter of an action.
type ParamSpec struct {
	Name        string
	Type        string
	Required    bool
	Description string
}

// ActionSpec is one catalogue entry: an action code, its purpose and its
// parameter schema.
type ActionSpec struct {
	Code    ActionCode
	Purpose string
	Params  []ParamSpec
}

// actionCatalogue is the fixed action registry.
var actionCatalogue = []ActionSpec{
	{
		Code:    ActionBuscarUniversal,
		Purpose: "Recuperar filas de alumnos por criterios arbitrarios.",
		Params: []ParamSpec{
			{Name: "criterio_principal", Type: "objeto {tabla, campo, operador, valor}", Required: true, Description: "criterio principal de búsqueda"},
			{Name: "filtros_adicionales", Type: "lista de {tabla, campo, operador, valor}", Required: false, Description: "criterios adicionales combinados con AND"},
			{Name: "campos_solicitados", Type: "lista de columnas", Required: false, Description: "proyección; vacío devuelve todas"},
			{Name: "limite", Type: "entero", Required: false, Description: "tope de filas"},
		},
	},
	{
		Code:    ActionContarUniversal,
		Purpose: "Contar con predicados complejos (IN, BETWEEN, NOT IN). Respaldo cuando CALCULAR_ESTADISTICA no alcanza.",
		Params: []ParamSpec{
			{Name: "criterio_principal", Type: "objeto {tabla, campo, operador, valor}", Required: true, Description: "criterio principal"},
			{Name: "filtros_adicionales", Type: "lista", Required: false, Description: "criterios adicionales"},
		},
	},
	{
		Code:    ActionCalcularEstadistica,
		Purpose: "Conteos simples, distribuciones agrupadas y promedios. PREFERIR esta acción para todo conteo o agrupación.",
		Params: []ParamSpec{
			{Name: "tipo", Type: "conteo|distribucion|promedio", Required: true, Description: "clase de estadística"},
			{Name: "agrupar_por", Type: "grado|grupo|turno", Required: false, Description: "columna de agrupación para distribuciones"},
			{Name: "filtro", Type: "texto 'campo: valor'", Required: false, Description: "filtro opcional"},
			{Name: "campo", Type: "columna", Required: false, Description: "campo del promedio"},
		},
	},
	{
		Code:    ActionGenerarConstancia,
		Purpose: "Producir la constancia PDF de un alumno.",
		Params: []ParamSpec{
			{Name: "alumno_identificador", Type: "texto o id", Required: true, Description: "nombre (o fragmento) o id del alumno"},
			{Name: "tipo_constancia", Type: "estudios|calificaciones|traslado", Required: true, Description: "tipo de documento"},
			{Name: "incluir_foto", Type: "booleano", Required: false, Description: "incluir fotografía"},
		},
	},
	{
		Code:    ActionTransformarPDF,
		Purpose: "Convertir el PDF cargado en el panel a una constancia.",
		Params: []ParamSpec{
			{Name: "tipo_constancia", Type: "estudios|calificaciones|traslado", Required: true, Description: "formato destino"},
		},
	},
	{
		Code:    ActionFiltrarCalificaciones,
		Purpose: "Filtrar alumnos según tengan o no calificaciones registradas.",
		Params: []ParamSpec{
			{Name: "con_calificaciones", Type: "booleano", Required: true, Description: "true = con calificaciones, false = sin"},
		},
	},
}

// ActionCatalogue returns the fixed registry.
func ActionCatalogue() []ActionSpec {
	return actionCatalogue
}

// actionAliases corrects common mistakes the LLM makes when naming actions.
var actionAliases = map[string]ActionCode{
	"ESTADISTICAS":       ActionCalcularEstadistica,
	"ESTADISTICA":        ActionCalcularEstadistica,
	"CONTAR_ALUMNOS":     ActionCalcularEstadistica,
	"BUSCAR":             ActionBuscarUniversal,
	"BUSCAR_ALUMNOS":     ActionBuscarUniversal,
	"CONTAR":             ActionContarUniversal,
	"GENERAR_CONSTANCIA": ActionGenerarConstancia,
	"CONSTANCIA":         ActionGenerarConstancia,
}

// NormalizeAction resolves a raw action label to a catalogue code, applying
// the alias table. Unknown labels return false.
func NormalizeAction(raw string) (ActionCode, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	for _, spec := range actionCatalogue {
		if string(spec.Code) == normalized {
			return spec.Code, true
		}
	}
	if mapped, ok := actionAliases[normalized]; ok {
		return mapped, true
	}
	return "", false
}

// ActionsPromptSection renders the catalogue for the student's action
// selection prompt.
func ActionsPromptSection() string {
	var b strings.Builder
	b.WriteString("CATÁLOGO DE ACCIONES:\n")
	for _, spec := range actionCatalogue {
		fmt.Fprintf(&b, "\n%s — %s\n", spec.Code, spec.Purpose)
		for _, p := range spec.Params {
			req := "opcional"
			if p.Required {
				req = "requerido"
			}
			fmt.Fprintf(&b, "  - %s (%s, %s): %s\n", p.Name, p.Type, req, p.Description)
		}
	}
	b.WriteString("\nREGLA: para conteos y agrupaciones usa CALCULAR_ESTADISTICA; ")
	b.WriteString("CONTAR_UNIVERSAL sólo cuando el predicado excede sus plantillas (IN, BETWEEN, NOT IN).\n")
	return b.String()
}
