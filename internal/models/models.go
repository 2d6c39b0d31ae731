package models

import (
	"encoding/json"
	"time"
)

// IntentionType classifies an utterance into one of the closed set of
// top-level intentions the pipeline can handle.
type IntentionType string

const (
	IntentionConsultaAlumnos     IntentionType = "consulta_alumnos"
	IntentionAyudaSistema        IntentionType = "ayuda_sistema"
	IntentionConversacionGeneral IntentionType = "conversacion_general"
	IntentionTransformacionPDF   IntentionType = "transformacion_pdf"
)

// ConstanciaKind identifies the kind of official PDF document to render.
type ConstanciaKind string

const (
	ConstanciaEstudios       ConstanciaKind = "estudios"
	ConstanciaCalificaciones ConstanciaKind = "calificaciones"
	ConstanciaTraslado       ConstanciaKind = "traslado"
)

// Row is one database result row, keyed by column name.
type Row map[string]any

// ResolvedStudent is a student reference pinned down during interpretation,
// either by the LLM or by contextual resolution against the stack.
type ResolvedStudent struct {
	ID     int    `json:"id,omitempty"`
	Nombre string `json:"nombre"`
}

// DetectedEntities holds the structured facts extracted from an utterance.
// Every field is optional; each sub-intention populates a different subset.
type DetectedEntities struct {
	Nombres          []string         `json:"nombres,omitempty"`
	Filtros          []string         `json:"filtros,omitempty"` // "campo: valor" pairs
	LimiteResultados int              `json:"limite_resultados,omitempty"`
	AlumnoResuelto   *ResolvedStudent `json:"alumno_resuelto,omitempty"`
	TipoConstancia   ConstanciaKind   `json:"tipo_constancia,omitempty"`
	IncluirFoto      bool             `json:"incluir_foto,omitempty"`
}

// Intention is the immutable routing record produced by the master's front
// LLM call. Unknown JSON fields are carried through verbatim in Extra so
// each specialist can read the subset relevant to its sub-intention.
type Intention struct {
	Type           IntentionType    `json:"intention_type"`
	SubIntention   string           `json:"sub_intention"`
	Confidence     float64          `json:"confidence"`
	Reasoning      string           `json:"reasoning"`
	Entities       DetectedEntities `json:"detected_entities"`
	Categorization string           `json:"student_categorization,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// knownIntentionFields are consumed by the typed fields above; everything
// else lands in Extra.
var knownIntentionFields = map[string]bool{
	"intention_type":         true,
	"sub_intention":          true,
	"confidence":             true,
	"reasoning":              true,
	"detected_entities":      true,
	"student_categorization": true,
	"student_categorizacion": true,
}

// UnmarshalIntention decodes a routing JSON object, preserving unknown
// fields verbatim.
func UnmarshalIntention(data []byte) (*Intention, error) {
	var in Intention
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	for k, v := range raw {
		if !knownIntentionFields[k] {
			if in.Extra == nil {
				in.Extra = make(map[string]json.RawMessage)
			}
			in.Extra[k] = v
		}
	}
	// The routing model sometimes hispanicizes the categorization key.
	if in.Categorization == "" {
		if v, ok := raw["student_categorizacion"]; ok {
			_ = json.Unmarshal(v, &in.Categorization)
		}
	}
	return &in, nil
}

// AwaitingKind states what kind of follow-up a turn expects.
type AwaitingKind string

const (
	AwaitingNone          AwaitingKind = "none"
	AwaitingSelection     AwaitingKind = "selection"
	AwaitingAction        AwaitingKind = "action"
	AwaitingConfirmation  AwaitingKind = "confirmation"
	AwaitingSpecification AwaitingKind = "specification"
)

// DatosRecordar is the slice of the turn the student asks the master to keep
// on the conversation stack.
type DatosRecordar struct {
	Query    string `json:"query"`
	Data     []Row  `json:"data"`
	RowCount int    `json:"row_count"`
	Context  string `json:"context"`
}

// Reflexion is the student's self-assessment of whether the user will
// likely follow up, and with what.
type Reflexion struct {
	EsperaContinuacion bool          `json:"espera_continuacion"`
	TipoEsperado       AwaitingKind  `json:"tipo_esperado"`
	DatosRecordar      DatosRecordar `json:"datos_recordar"`
	Razonamiento       string        `json:"razonamiento"`
}

// Turn action codes reported on a TurnResult.
const (
	ActionBusqueda            = "busqueda"
	ActionEstadistica         = "estadistica"
	ActionConstanciaPreview   = "constancia_preview"
	ActionConstanciaError     = "constancia_error"
	ActionConstanciaConfirmed = "constancia_confirmed"
	ActionConstanciaCancelled = "constancia_cancelled"
	ActionTransformacion      = "transformacion"
	ActionAclaracion          = "aclaracion"
	ActionSeleccionRequerida  = "seleccion_requerida"
	ActionLimitacion          = "limitation_explanation"
	ActionAyuda               = "ayuda"
	ActionConversacion        = "conversacion"
	ActionFallo               = "fallo"
)

// TurnResult is what a specialist hands back to the master: the technical
// outcome of one turn plus the reflexion the master uses to update the stack.
type TurnResult struct {
	Action    string     `json:"action"`
	Rows      []Row      `json:"rows,omitempty"`
	RowCount  int        `json:"row_count"`
	SQL       string     `json:"sql,omitempty"`
	Message   string     `json:"message"`
	Reflexion *Reflexion `json:"reflexion,omitempty"`
	PDFPath   string     `json:"pdf_path,omitempty"`
	Failure   bool       `json:"failure,omitempty"`
}

// Utterance is one raw user string at one turn.
type Utterance struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Student is a flattened student record as read from the database.
type Student struct {
	ID              int    `json:"id"`
	Nombre          string `json:"nombre"`
	CURP            string `json:"curp"`
	Matricula       string `json:"matricula"`
	FechaNacimiento string `json:"fecha_nacimiento"`
	Grado           int    `json:"grado"`
	Grupo           string `json:"grupo"`
	Turno           string `json:"turno"`
	CicloEscolar    string `json:"ciclo_escolar"`
	Calificaciones  string `json:"calificaciones"` // raw JSON array
}
