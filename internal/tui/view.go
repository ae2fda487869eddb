// pattern: Imperative Shell

package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"floorcast/internal/feed"
	"floorcast/internal/logging"
)

// View renders the TUI.
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	layout := ComputeLayout(m.width, m.height, m.logPanelOpen)

	parts := []string{
		m.renderHeader(layout),
		m.renderStatus(layout),
	}

	if m.formOpen {
		parts = append(parts, lipgloss.NewStyle().
			Width(layout.Images.X+layout.Images.Width).
			Height(layout.Images.Height).
			Render(m.renderUploadForm()))
	} else {
		parts = append(parts, lipgloss.JoinHorizontal(lipgloss.Top,
			m.renderSections(layout),
			m.renderImages(layout),
		))
	}

	parts = append(parts, m.renderActivity(layout))

	if m.logPanelOpen {
		parts = append(parts, m.styles.SeparatorStyle().Render(strings.Repeat("─", layout.Separator.Width)))
		parts = append(parts, m.renderLogPanel(layout))
	}

	parts = append(parts, lipgloss.NewStyle().Width(layout.StatusBar.Width).Render(m.renderStatusBar(layout.StatusBar.Width)))

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) renderHeader(layout Layout) string {
	title := m.styles.TitleStyle().Render("Floorcast")
	subtitle := "floor plan renders"
	if m.backend != nil {
		subtitle = m.backend.BaseURL()
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		title,
		m.styles.SubtitleStyle().Render(truncate(subtitle, layout.Header.Width)),
	)
}

// renderStatus renders the stream badge with the latest status text, the
// error banner and the style description, one line each.
func (m Model) renderStatus(layout Layout) string {
	s := m.session
	width := layout.Status.Width

	badge := m.styles.StreamStatusStyle(s.Status).Render("● " + s.Status.String())
	if s.Status == feed.StatusConnecting || s.Retrying {
		badge = m.statusSpinner.View() + " " + badge
	}
	line := badge
	if s.StatusText != "" {
		line += "  " + m.styles.InfoStyle().Render(s.StatusText)
	}

	errLine := ""
	if s.Err != "" {
		errLine = m.styles.ErrorBannerStyle().Render(truncate("Error: "+s.Err, width-2))
	}

	styleLine := ""
	if s.StyleDescription != "" {
		styleLine = m.styles.AccentStyle().Render("Style: ") +
			m.styles.SubtitleStyle().Render(truncate(s.StyleDescription, width-7))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		truncate(line, width),
		errLine,
		styleLine,
	)
}

func (m Model) renderSections(layout Layout) string {
	region := layout.Sections
	header := m.styles.PanelHeaderUnfocusedStyle().Width(region.Width).Render(" Sections")

	lines := []string{m.renderSectionLine(feed.FilterAll, "All Images", len(m.session.Images), region.Width)}
	for _, sec := range feed.Sections(m.session) {
		lines = append(lines, m.renderSectionLine(sec.RoomID, sec.Name, sec.Count, region.Width))
	}
	if len(m.session.Rooms) > len(lines)-1 {
		lines = append(lines, m.styles.HelpStyle().Render(fmt.Sprintf("  %d rooms detected", len(m.session.Rooms))))
	}

	body := lipgloss.NewStyle().
		Width(region.Width).
		Height(layout.ListHeight()).
		Render(strings.Join(clip(lines, layout.ListHeight()), "\n"))
	return lipgloss.JoinVertical(lipgloss.Left, header, body)
}

func (m Model) renderSectionLine(id, name string, count, width int) string {
	cursor := "  "
	style := m.styles.InfoStyle()
	active := m.session.Filter == id || (id == feed.FilterAll && m.session.Filter == "")
	if active {
		cursor = "> "
		style = m.styles.SelectedStyle()
	}
	text := fmt.Sprintf("%s (%d)", name, count)
	return cursor + style.Render(truncate(text, width-3))
}

func (m Model) renderImages(layout Layout) string {
	region := layout.Images
	imgs := feed.Filtered(m.session)
	header := m.styles.PanelHeaderFocusedStyle().Width(region.Width).
		Render(fmt.Sprintf(" %s (%d)", feed.FilterLabel(m.session), len(imgs)))

	var lines []string
	if len(imgs) == 0 {
		lines = []string{m.styles.HelpStyle().Render(" No images yet")}
	}
	for _, img := range imgs {
		lines = append(lines, m.renderImageLine(img, region.Width))
	}
	// Keep the newest images visible.
	h := layout.ListHeight()
	if len(lines) > h {
		lines = lines[len(lines)-h:]
	}

	body := lipgloss.NewStyle().
		Width(region.Width).
		Height(h).
		Render(strings.Join(lines, "\n"))
	return lipgloss.JoinVertical(lipgloss.Left, header, body)
}

func (m Model) renderImageLine(img feed.Image, width int) string {
	kind := img.Kind.Label()
	if kind == "" {
		kind = "Image"
	}
	tag := m.styles.KindStyle(img.Kind).Render(fmt.Sprintf("%-16s", kind))
	title := img.Title
	if title == "" {
		title = img.RoomName
	}
	return " " + tag + " " + truncate(title, width-19)
}

func (m Model) renderActivity(layout Layout) string {
	region := layout.Activity
	header := m.styles.PanelHeaderUnfocusedStyle().Width(region.Width).Render(" Activity")
	lines := clip(m.session.Activity, region.Height-1)
	for i, l := range lines {
		lines[i] = m.styles.SubtitleStyle().Render(" " + truncate(l, region.Width-1))
	}
	body := lipgloss.NewStyle().Height(region.Height - 1).Render(strings.Join(lines, "\n"))
	return lipgloss.JoinVertical(lipgloss.Left, header, body)
}

func (m Model) renderUploadForm() string {
	var b strings.Builder
	b.WriteString(m.styles.TitleStyle().Render("Upload floor plan"))
	b.WriteString("\n\n")
	for i := range m.formInputs {
		b.WriteString(m.formInputs[i].View())
		b.WriteString("\n")
	}
	if m.formError != "" {
		b.WriteString("\n")
		b.WriteString(m.styles.ErrorStyle().Render(m.formError))
	}
	b.WriteString("\n")
	b.WriteString(m.styles.HelpStyle().Render("enter: upload • tab: next field • esc: cancel"))
	return m.styles.BoxStyle().Render(b.String())
}

// renderStatusBar renders the status bar with operation feedback and help.
func (m Model) renderStatusBar(width int) string {
	var statusIcon string
	var messageStyle lipgloss.Style

	switch m.statusLevel {
	case StatusLoading:
		statusIcon = m.statusSpinner.View()
		messageStyle = m.styles.InfoStatusStyle()
	case StatusSuccess:
		statusIcon = m.styles.SuccessStyle().Render("✓")
		messageStyle = m.styles.SuccessStyle()
	case StatusError:
		statusIcon = m.styles.ErrorStyle().Render("✗")
		messageStyle = m.styles.ErrorStyle()
	default: // StatusInfo
		messageStyle = m.styles.InfoStatusStyle()
	}

	var statusText string
	if statusIcon != "" {
		statusText = statusIcon + " " + messageStyle.Render(m.statusMessage)
	} else if m.statusMessage != "" {
		statusText = messageStyle.Render(m.statusMessage)
	}
	if m.statusLevel == StatusError {
		statusText += m.styles.HelpStyle().Render(" (esc to clear)")
	}

	help := m.renderContextualHelp()

	spacerWidth := width - lipgloss.Width(statusText) - lipgloss.Width(help) - 2
	if spacerWidth < 1 {
		spacerWidth = 1
	}

	return lipgloss.JoinHorizontal(lipgloss.Bottom,
		statusText,
		strings.Repeat(" ", spacerWidth),
		help,
	)
}

func (m Model) renderContextualHelp() string {
	var help string
	switch {
	case m.formOpen:
		help = "enter: upload • esc: cancel"
	case m.logPanelOpen:
		help = "↑/↓: scroll logs • v: level • tab: filter • l: close logs • q: quit"
	default:
		help = "tab: filter • r: reset • u: upload • s: save • l: logs • q: quit"
	}
	return m.styles.HelpStyle().Render(help)
}

// renderLogEntry formats a single log entry for display.
func (m Model) renderLogEntry(entry logging.LogEntry) string {
	ts := m.styles.LogTimestampStyle().Render(entry.Timestamp.Format("15:04:05"))

	var level string
	switch entry.Level {
	case "DEBUG":
		level = m.styles.LogDebugStyle().Render("DEBUG")
	case "INFO":
		level = m.styles.LogInfoStyle().Render("INFO")
	case "WARN":
		level = m.styles.LogWarnStyle().Render("WARN")
	case "ERROR":
		level = m.styles.LogErrorStyle().Render("ERROR")
	default:
		level = m.styles.LogInfoStyle().Render(entry.Level)
	}

	scope := m.styles.LogScopeStyle().Render("[" + entry.Scope + "]")
	if entry.Job != "" {
		scope += m.styles.LogTimestampStyle().Render(" " + logging.ShortJob(entry.Job))
	}

	line := fmt.Sprintf("%s %s %s %s", ts, level, scope, entry.Message)
	if f := entry.FieldString(); f != "" {
		line += " " + m.styles.LogTimestampStyle().Render(f)
	}
	return line
}

// renderLogPanel renders the log panel content.
func (m Model) renderLogPanel(layout Layout) string {
	header := m.styles.PanelHeaderFocusedStyle().Width(layout.Logs.Width).
		Render(fmt.Sprintf(" Logs (%d, %s+)", len(m.visibleLogs()), m.logLevel))

	if m.logReady {
		return lipgloss.JoinVertical(lipgloss.Left, header, m.logViewport.View())
	}

	var lines []string
	for _, entry := range m.visibleLogs() {
		lines = append(lines, m.renderLogEntry(entry))
	}
	if len(lines) == 0 {
		lines = []string{m.styles.InfoStyle().Render("No log entries")}
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		lipgloss.NewStyle().
			Width(layout.Logs.Width).
			Height(layout.Logs.Height-1).
			Render(strings.Join(lines, "\n")),
	)
}

// truncate shortens s to width cells, ANSI-aware.
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	return ansi.Truncate(s, width, "…")
}

// clip returns at most n leading elements of lines, copied.
func clip(lines []string, n int) []string {
	if n < 0 {
		n = 0
	}
	if len(lines) > n {
		lines = lines[:n]
	}
	return append([]string(nil), lines...)
}
