package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/aulaflow/aulaflow/internal/docs"
	"github.com/aulaflow/aulaflow/internal/models"
)

// constanciaParams parameterize GENERAR_CONSTANCIA_COMPLETA.
type constanciaParams struct {
	AlumnoIdentificador string `json:"alumno_identificador"`
	TipoConstancia      string `json:"tipo_constancia"`
	IncluirFoto         bool   `json:"incluir_foto"`
}

// runConstancia resolves exactly one student, renders the document and
// returns a preview awaiting confirmation. Zero matches ask for
// clarification, multiple matches ask for a numbered selection.
func (s *StudentInterpreter) runConstancia(ctx context.Context, params json.RawMessage, intent *models.Intention, tc *TurnContext) (*models.TurnResult, error) {
	var p constanciaParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return s.failureResult("parámetros de constancia inválidos"), nil
		}
	}

	kind := constanciaKind(p.TipoConstancia, intent)

	student, pending, err := s.resolveStudent(ctx, &p, intent)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		return pending, nil
	}

	opts := docs.RenderOptions{IncludePhoto: p.IncluirFoto || intent.Entities.IncluirFoto}
	path, err := s.renderer.Render(ctx, kind, student, opts)
	if err != nil {
		s.logger.Error("constancia render failed", "student_id", student.ID, "kind", kind, "error", err)
		return &models.TurnResult{
			Action:  models.ActionConstanciaError,
			Failure: true,
			Message: fmt.Sprintf("No pude generar la constancia de %s para %s.", kind, student.Nombre),
		}, nil
	}

	row := studentRow(student)
	return &models.TurnResult{
		Action:   models.ActionConstanciaPreview,
		Rows:     []models.Row{row},
		RowCount: 1,
		PDFPath:  path,
		Message: fmt.Sprintf("Constancia de %s generada para %s. ¿La confirmo?",
			kind, student.Nombre),
		Reflexion: &models.Reflexion{
			EsperaContinuacion: true,
			TipoEsperado:       models.AwaitingConfirmation,
			DatosRecordar: models.DatosRecordar{
				Query:    tc.Utterance,
				Data:     []models.Row{row},
				RowCount: 1,
				Context:  "constancia pendiente de confirmación",
			},
			Razonamiento: "vista previa de constancia, se espera confirmar o cancelar",
		},
	}, nil
}

// resolveStudent turns the identifier from the action parameters or the
// routing entities into exactly one student record. The second return is a
// non-nil TurnResult when the turn must end early asking the user.
func (s *StudentInterpreter) resolveStudent(ctx context.Context, p *constanciaParams, intent *models.Intention) (*models.Student, *models.TurnResult, error) {
	if resolved := intent.Entities.AlumnoResuelto; resolved != nil && resolved.ID > 0 {
		student, err := s.repo.FindByID(ctx, resolved.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("resolve student %d: %w", resolved.ID, err)
		}
		if student != nil {
			return student, nil, nil
		}
	}

	identifier := strings.TrimSpace(p.AlumnoIdentificador)
	if identifier == "" && len(intent.Entities.Nombres) > 0 {
		identifier = intent.Entities.Nombres[0]
	}
	if identifier == "" {
		return nil, s.clarification("¿Para qué alumno genero la constancia?"), nil
	}

	if id, err := strconv.Atoi(identifier); err == nil {
		student, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return nil, nil, fmt.Errorf("resolve student %d: %w", id, err)
		}
		if student == nil {
			return nil, s.clarification(fmt.Sprintf("No encontré ningún alumno con id %d.", id)), nil
		}
		return student, nil, nil
	}

	matches, err := s.repo.FindByNameFragment(ctx, identifier)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve student %q: %w", identifier, err)
	}
	switch len(matches) {
	case 0:
		return nil, s.clarification(fmt.Sprintf("No encontré ningún alumno llamado %q.", identifier)), nil
	case 1:
		return &matches[0], nil, nil
	}

	rows := make([]models.Row, 0, len(matches))
	for _, m := range matches {
		rows = append(rows, studentRow(&m))
	}
	return nil, &models.TurnResult{
		Action:   models.ActionSeleccionRequerida,
		Rows:     rows,
		RowCount: len(rows),
		Message: fmt.Sprintf("Encontré %d alumnos:\n%s\n¿A cuál te refieres?",
			len(matches), CandidateList(rows)),
		Reflexion: &models.Reflexion{
			EsperaContinuacion: true,
			TipoEsperado:       models.AwaitingSelection,
			DatosRecordar: models.DatosRecordar{
				Query:    identifier,
				Data:     rows,
				RowCount: len(rows),
				Context:  "candidatos para constancia",
			},
			Razonamiento: "varios alumnos coinciden, se espera una selección",
		},
	}, nil
}

// runTransform converts the PDF uploaded in the panel into a constancia.
func (s *StudentInterpreter) runTransform(ctx context.Context, params json.RawMessage, tc *TurnContext) (*models.TurnResult, error) {
	if tc.CurrentPDFPath == "" {
		return s.clarification("No hay ningún PDF cargado en el panel. Sube el documento primero."), nil
	}

	var p constanciaParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return s.failureResult("parámetros de transformación inválidos"), nil
		}
	}
	kind := constanciaKind(p.TipoConstancia, nil)

	student, err := s.transformer.ExtractFields(ctx, tc.CurrentPDFPath)
	if err != nil {
		s.logger.Error("pdf field extraction failed", "path", tc.CurrentPDFPath, "error", err)
		return &models.TurnResult{
			Action:  models.ActionConstanciaError,
			Failure: true,
			Message: "No pude leer los datos del PDF cargado.",
		}, nil
	}

	path, err := s.transformer.RenderAs(ctx, student, kind)
	if err != nil {
		s.logger.Error("pdf transformation failed", "path", tc.CurrentPDFPath, "kind", kind, "error", err)
		return &models.TurnResult{
			Action:  models.ActionConstanciaError,
			Failure: true,
			Message: fmt.Sprintf("No pude transformar el PDF a constancia de %s.", kind),
		}, nil
	}

	row := studentRow(student)
	return &models.TurnResult{
		Action:   models.ActionTransformacion,
		Rows:     []models.Row{row},
		RowCount: 1,
		PDFPath:  path,
		Message: fmt.Sprintf("Transformé el PDF en una constancia de %s para %s. ¿La confirmo?",
			kind, student.Nombre),
		Reflexion: &models.Reflexion{
			EsperaContinuacion: true,
			TipoEsperado:       models.AwaitingConfirmation,
			DatosRecordar: models.DatosRecordar{
				Query:    tc.Utterance,
				Data:     []models.Row{row},
				RowCount: 1,
				Context:  "transformación pendiente de confirmación",
			},
			Razonamiento: "vista previa de transformación, se espera confirmar o cancelar",
		},
	}, nil
}

// constanciaKind maps the raw label to a known kind, defaulting to
// estudios.
func constanciaKind(raw string, intent *models.Intention) models.ConstanciaKind {
	if intent != nil && intent.Entities.TipoConstancia != "" {
		return intent.Entities.TipoConstancia
	}
	switch models.ConstanciaKind(strings.ToLower(strings.TrimSpace(raw))) {
	case models.ConstanciaCalificaciones:
		return models.ConstanciaCalificaciones
	case models.ConstanciaTraslado:
		return models.ConstanciaTraslado
	default:
		return models.ConstanciaEstudios
	}
}

func (s *StudentInterpreter) clarification(message string) *models.TurnResult {
	return &models.TurnResult{
		Action:  models.ActionAclaracion,
		Message: message,
		Reflexion: &models.Reflexion{
			EsperaContinuacion: true,
			TipoEsperado:       models.AwaitingSpecification,
			Razonamiento:       "falta información para continuar",
		},
	}
}

// studentRow projects a student record into the row shape the stack and
// prompts consume.
func studentRow(st *models.Student) models.Row {
	return models.Row{
		"id":        st.ID,
		"nombre":    st.Nombre,
		"curp":      st.CURP,
		"matricula": st.Matricula,
		"grado":     st.Grado,
		"grupo":     st.Grupo,
		"turno":     st.Turno,
	}
}
