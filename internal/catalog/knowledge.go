package catalog

// Capability encodes what the system can and cannot do for one
// sub-intention. Unsupported cases short-circuit the pipeline: the master
// answers with the limitation and its alternatives, and the student is
// never called.
type Capability struct {
	CanHandle    bool
	Limitations  []string
	Alternatives []string
}

// knowledgeMap is the in-process feasibility table, keyed by sub-intention.
// Sub-intentions absent from the map are assumed handleable.
var knowledgeMap = map[string]Capability{
	"busqueda_simple":       {CanHandle: true},
	"busqueda_combinada":    {CanHandle: true},
	"estadisticas":          {CanHandle: true},
	"generar_constancia":    {CanHandle: true},
	"filtro_calificaciones": {CanHandle: true},
	"transformar_constancia": {
		CanHandle:   true,
		Limitations: []string{"requiere un PDF cargado previamente en el panel"},
	},
	"ranking_alumnos": {
		CanHandle: false,
		Limitations: []string{
			"las calificaciones viven como arreglo JSON dentro de datos_escolares, sin tabla propia",
			"ordenar alumnos por promedio requiere un join lateral completo que todavía no está soportado",
		},
		Alternatives: []string{
			"distribución por grado",
			"promedio general de un alumno",
			"lista de alumnos con calificaciones registradas",
		},
	},
	"comparacion_materias": {
		CanHandle: false,
		Limitations: []string{
			"no hay índice por materia sobre el arreglo JSON de calificaciones",
		},
		Alternatives: []string{
			"promedio general de un alumno",
			"distribución por grado",
		},
	},
}

// Lookup returns the capability entry for a sub-intention. Unknown
// sub-intentions are treated as handleable with no caveats.
func Lookup(subIntention string) Capability {
	if cap, ok := knowledgeMap[subIntention]; ok {
		return cap
	}
	return Capability{CanHandle: true}
}
