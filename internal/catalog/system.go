package catalog

import (
	"fmt"
	"strings"

	"github.com/aulaflow/aulaflow/internal/models"
)

// SubIntention describes one registered sub-intention with its canonical
// example utterances. The examples are injected verbatim into the master's
// routing prompt.
type SubIntention struct {
	Name        string
	Description string
	Examples    []string
}

// IntentInfo describes one top-level intention.
type IntentInfo struct {
	Type          models.IntentionType
	Description   string
	SubIntentions []SubIntention
}

// systemCatalogue is the single source of truth for the set of intents. It
// is static, in-process and never persisted.
var systemCatalogue = []IntentInfo{
	{
		Type:        models.IntentionConsultaAlumnos,
		Description: "Consultas sobre los alumnos de la escuela: búsquedas, conteos, estadísticas y generación de constancias.",
		SubIntentions: []SubIntention{
			{
				Name:        "busqueda_simple",
				Description: "Buscar alumnos por un solo criterio (nombre, grado, grupo, turno).",
				Examples: []string{
					"buscar García",
					"alumnos de segundo grado",
					"quién es Juan Pérez",
				},
			},
			{
				Name:        "busqueda_combinada",
				Description: "Buscar alumnos combinando varios criterios, incluidas continuaciones sobre resultados previos.",
				Examples: []string{
					"alumnos de 3er grado del turno matutino",
					"de esos los del turno vespertino",
				},
			},
			{
				Name:        "estadisticas",
				Description: "Conteos, distribuciones por grado/grupo/turno y promedios.",
				Examples: []string{
					"cuántos alumnos hay",
					"distribución de alumnos por grado",
					"promedio general de la escuela",
				},
			},
			{
				Name:        "generar_constancia",
				Description: "Generar una constancia oficial en PDF para un alumno.",
				Examples: []string{
					"genera una constancia de estudios para Juan Pérez",
					"constancia para el segundo",
				},
			},
			{
				Name:        "filtro_calificaciones",
				Description: "Filtrar alumnos según tengan o no calificaciones registradas.",
				Examples: []string{
					"alumnos sin calificaciones",
					"cuáles de ellos ya tienen calificaciones",
				},
			},
			{
				Name:        "ranking_alumnos",
				Description: "Rankings de mejores/peores alumnos (capacidad limitada, ver restricciones).",
				Examples: []string{
					"quién es el mejor alumno de 5to",
					"los tres peores promedios",
				},
			},
			{
				Name:        "comparacion_materias",
				Description: "Comparaciones por materia entre alumnos (capacidad limitada, ver restricciones).",
				Examples: []string{
					"quién tiene mejor calificación en matemáticas",
				},
			},
		},
	},
	{
		Type:        models.IntentionAyudaSistema,
		Description: "Preguntas sobre qué puede hacer el asistente y cómo usarlo.",
		SubIntentions: []SubIntention{
			{
				Name:        "entender_capacidades",
				Description: "Explicar las capacidades del sistema.",
				Examples: []string{
					"qué puedes hacer",
					"ayuda",
				},
			},
			{
				Name:        "como_usar",
				Description: "Explicar cómo formular una consulta o generar un documento.",
				Examples: []string{
					"cómo genero una constancia",
					"cómo busco un alumno",
				},
			},
		},
	},
	{
		Type:        models.IntentionConversacionGeneral,
		Description: "Saludos y conversación casual sin relación con los datos escolares.",
		SubIntentions: []SubIntention{
			{
				Name:        "saludo",
				Description: "Saludos y despedidas.",
				Examples: []string{
					"hola, buenos días",
					"gracias, hasta luego",
				},
			},
			{
				Name:        "chat_casual",
				Description: "Charla casual.",
				Examples: []string{
					"qué tal tu día",
				},
			},
		},
	},
	{
		Type:        models.IntentionTransformacionPDF,
		Description: "Transformar un PDF previamente cargado en una constancia oficial.",
		SubIntentions: []SubIntention{
			{
				Name:        "transformar_constancia",
				Description: "Convertir el PDF cargado al formato de constancia solicitado.",
				Examples: []string{
					"convierte el PDF a constancia de estudios",
					"transforma este documento a constancia de traslado",
				},
			},
		},
	},
}

// SystemCatalogue returns the static intent table.
func SystemCatalogue() []IntentInfo {
	return systemCatalogue
}

// KnownIntention reports whether the type is part of the closed set.
func KnownIntention(t models.IntentionType) bool {
	for _, info := range systemCatalogue {
		if info.Type == t {
			return true
		}
	}
	return false
}

// intentionRemap corrects common mislabels the LLM produces for the
// top-level intention.
var intentionRemap = map[string]models.IntentionType{
	"estadistica":    models.IntentionConsultaAlumnos,
	"estadisticas":   models.IntentionConsultaAlumnos,
	"ayuda":          models.IntentionAyudaSistema,
	"transformacion": models.IntentionTransformacionPDF,
	"conversacion":   models.IntentionConversacionGeneral,
}

// NormalizeIntention lower-cases the raw label, applies the remap table and
// falls back to consulta_alumnos when nothing resolves. The second return
// reports whether any correction fired.
func NormalizeIntention(raw string) (models.IntentionType, bool) {
	normalized := models.IntentionType(strings.ToLower(strings.TrimSpace(raw)))
	if KnownIntention(normalized) {
		return normalized, false
	}
	if mapped, ok := intentionRemap[string(normalized)]; ok {
		return mapped, true
	}
	return models.IntentionConsultaAlumnos, true
}

// PromptSection renders the full catalogue for the routing prompt: every
// intention with its description and canonical examples.
func PromptSection() string {
	var b strings.Builder
	b.WriteString("INTENCIONES DISPONIBLES:\n")
	for _, info := range systemCatalogue {
		fmt.Fprintf(&b, "\n- %s: %s\n", info.Type, info.Description)
		for _, sub := range info.SubIntentions {
			fmt.Fprintf(&b, "  * %s: %s\n", sub.Name, sub.Description)
			for _, ex := range sub.Examples {
				fmt.Fprintf(&b, "    ej: %q\n", ex)
			}
		}
	}
	return b.String()
}
