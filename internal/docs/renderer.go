// Package docs defines the PDF collaborators the pipeline invokes from the
// constancia and transformation flows. The real rendering engine lives
// outside the core; the production adapter shells out to it.
package docs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/aulaflow/aulaflow/internal/models"
)

// RenderOptions tune a constancia render.
type RenderOptions struct {
	IncludePhoto bool `json:"incluir_foto"`
}

// Renderer produces an official school PDF for one student and returns the
// generated file path.
type Renderer interface {
	Render(ctx context.Context, kind models.ConstanciaKind, student *models.Student, opts RenderOptions) (string, error)
}

// Transformer converts an uploaded PDF into a constancia: field extraction
// first, then re-rendering in the requested format.
type Transformer interface {
	ExtractFields(ctx context.Context, path string) (*models.Student, error)
	RenderAs(ctx context.Context, student *models.Student, kind models.ConstanciaKind) (string, error)
}

// CommandRenderer invokes an external renderer binary. The student record
// goes to stdin as JSON; the command prints the output path on stdout.
type CommandRenderer struct {
	command string
}

// NewCommandRenderer creates a renderer around the configured command.
func NewCommandRenderer(command string) *CommandRenderer {
	return &CommandRenderer{command: command}
}

// renderPayload is the stdin contract with the external renderer.
type renderPayload struct {
	Kind    models.ConstanciaKind `json:"tipo"`
	Student *models.Student       `json:"alumno"`
	Options RenderOptions         `json:"opciones"`
}

// Render shells out to the renderer command with the kind as argument.
func (r *CommandRenderer) Render(ctx context.Context, kind models.ConstanciaKind, student *models.Student, opts RenderOptions) (string, error) {
	if r.command == "" {
		return "", fmt.Errorf("docs: renderer command not configured")
	}

	payload, err := json.Marshal(renderPayload{Kind: kind, Student: student, Options: opts})
	if err != nil {
		return "", fmt.Errorf("docs: marshal render payload: %w", err)
	}

	cmd := exec.CommandContext(ctx, r.command, "render", string(kind))
	cmd.Stdin = bytes.NewReader(payload)

	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("docs: renderer failed: %w", err)
	}

	path := strings.TrimSpace(string(out))
	if path == "" {
		return "", fmt.Errorf("docs: renderer returned no output path")
	}
	return path, nil
}

// ExtractFields asks the external command to pull student fields out of an
// uploaded PDF.
func (r *CommandRenderer) ExtractFields(ctx context.Context, path string) (*models.Student, error) {
	if r.command == "" {
		return nil, fmt.Errorf("docs: renderer command not configured")
	}

	cmd := exec.CommandContext(ctx, r.command, "extract", path)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("docs: field extraction failed: %w", err)
	}

	var student models.Student
	if err := json.Unmarshal(out, &student); err != nil {
		return nil, fmt.Errorf("docs: decode extracted fields: %w", err)
	}
	return &student, nil
}

// RenderAs re-renders extracted fields as the requested constancia kind.
func (r *CommandRenderer) RenderAs(ctx context.Context, student *models.Student, kind models.ConstanciaKind) (string, error) {
	return r.Render(ctx, kind, student, RenderOptions{})
}
