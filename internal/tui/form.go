// pattern: Imperative Shell

package tui

import (
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// FormField represents the currently focused upload form field.
type FormField int

const (
	FieldPath FormField = iota
	FieldStyle
	fieldCount // Used for wrap-around
)

func newFormInputs() []textinput.Model {
	inputs := make([]textinput.Model, fieldCount)

	path := textinput.New()
	path.Placeholder = "path/to/floorplan.png"
	path.Prompt = "File:  "
	path.CharLimit = 512
	inputs[FieldPath] = path

	style := textinput.New()
	style.Placeholder = "server default"
	style.Prompt = "Style: "
	style.CharLimit = 200
	inputs[FieldStyle] = style

	return inputs
}

// Form state accessors for testing and view rendering.

// IsFormOpen returns true if the upload form is open.
func (m Model) IsFormOpen() bool {
	return m.formOpen
}

// FormFocusedField returns the currently focused form field.
func (m Model) FormFocusedField() FormField {
	return FormField(m.formFocus)
}

// FormError returns any validation error message.
func (m Model) FormError() string {
	return m.formError
}

// openForm opens the upload form with the path field focused.
func (m *Model) openForm() tea.Cmd {
	m.formOpen = true
	m.formError = ""
	m.formInputs = newFormInputs()
	m.formFocus = int(FieldPath)
	return m.formInputs[FieldPath].Focus()
}

// resetForm closes the form and clears its inputs.
func (m *Model) resetForm() {
	m.formOpen = false
	m.formError = ""
	m.formFocus = int(FieldPath)
	m.formInputs = newFormInputs()
}

func (m *Model) focusField(f int) tea.Cmd {
	m.formInputs[m.formFocus].Blur()
	m.formFocus = (f + int(fieldCount)) % int(fieldCount)
	return m.formInputs[m.formFocus].Focus()
}

// validateForm checks that the path names a readable regular file.
func (m *Model) validateForm() bool {
	path := strings.TrimSpace(m.formInputs[FieldPath].Value())
	if path == "" {
		m.formError = "File path is required"
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		m.formError = "File not found: " + path
		return false
	}
	if info.IsDir() {
		m.formError = "Path is a directory"
		return false
	}
	m.formError = ""
	return true
}

func (m Model) handleFormKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEscape:
		m.resetForm()
		return m, nil
	case tea.KeyTab, tea.KeyDown:
		cmd := m.focusField(m.formFocus + 1)
		return m, cmd
	case tea.KeyShiftTab, tea.KeyUp:
		cmd := m.focusField(m.formFocus - 1)
		return m, cmd
	case tea.KeyEnter:
		if !m.validateForm() {
			return m, nil
		}
		path := strings.TrimSpace(m.formInputs[FieldPath].Value())
		style := strings.TrimSpace(m.formInputs[FieldStyle].Value())
		m.resetForm()
		cmd := m.startUpload(path, style)
		return m, cmd
	}

	var cmd tea.Cmd
	m.formInputs[m.formFocus], cmd = m.formInputs[m.formFocus].Update(msg)
	return m, cmd
}
