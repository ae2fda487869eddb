// pattern: Imperative Shell

package tui

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"floorcast/internal/events"
	"floorcast/internal/feed"
	"floorcast/internal/logging"
)

// requestTimeout bounds uploads, hydration and saves started from the viewer.
const requestTimeout = 2 * time.Minute

// connectStartedMsg reports the generation of the initial connection.
type connectStartedMsg struct {
	generation uint64
}

// logEntriesMsg delivers log entries from the logging channel.
type logEntriesMsg struct {
	entries []logging.LogEntry
}

// imagesSavedMsg is sent when a save started with "s" completes.
type imagesSavedMsg struct {
	dir   string
	paths []string
	err   error
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeLogViewport()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.statusSpinner, cmd = m.statusSpinner.Update(msg)
		return m, cmd

	case connectStartedMsg:
		if msg.generation > m.minGeneration {
			m.minGeneration = msg.generation
		}
		return m, nil

	case events.FeedMsg:
		if msg.Generation < m.minGeneration {
			m.logger.Debug("dropping stale feed message", "generation", msg.Generation, "current", m.minGeneration)
			return m, m.waitForFeed()
		}
		m.session = m.reducer.Reduce(m.session, msg.Event)
		return m, m.waitForFeed()

	case events.HydratedMsg:
		if msg.Epoch != m.epoch {
			m.logger.Debug("dropping stale hydration", "epoch", msg.Epoch, "current", m.epoch)
			return m, nil
		}
		if msg.Err != nil {
			m.logger.Warn("failed to fetch existing images", "error", msg.Err)
			m.setStatus(StatusError, "Could not load existing images: "+msg.Err.Error())
			return m, nil
		}
		m.session = feed.Hydrate(m.session, msg.Images)
		m.logger.Info("loaded existing images", "count", len(msg.Images))
		return m, nil

	case events.UploadDoneMsg:
		m.uploading = false
		if msg.Err != nil {
			m.logger.Error("upload failed", "error", msg.Err)
			m.setStatus(StatusError, "Upload failed: "+msg.Err.Error())
			return m, nil
		}
		m.logger.Info("upload accepted", "file_url", msg.FileURL)
		m.setStatus(StatusSuccess, "Uploaded "+msg.FileURL+", processing started")
		return m, nil

	case imagesSavedMsg:
		m.saving = false
		if msg.err != nil {
			m.logger.Error("saving images failed", "dir", msg.dir, "saved", len(msg.paths), "error", msg.err)
			m.setStatus(StatusError, "Save failed: "+msg.err.Error())
			return m, nil
		}
		m.logger.Info("images saved", "dir", msg.dir, "count", len(msg.paths))
		m.setStatus(StatusSuccess, fmt.Sprintf("Saved %d images to %s", len(msg.paths), msg.dir))
		return m, nil

	case logEntriesMsg:
		for _, entry := range msg.entries {
			m.addLogEntry(entry)
		}
		if m.logPanelOpen && m.logReady {
			m.updateLogViewportContent()
		}
		return m, m.consumeLogEntries()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return m.quit()
	}

	if m.formOpen {
		return m.handleFormKey(msg)
	}

	// Clear error with Escape
	if msg.Type == tea.KeyEscape && m.statusLevel == StatusError {
		m.clearStatus()
		return m, nil
	}

	switch msg.String() {
	case "q":
		return m.quit()
	case "tab":
		m.session = feed.WithFilter(m.session, feed.NextFilter(m.session, 1))
	case "shift+tab":
		m.session = feed.WithFilter(m.session, feed.NextFilter(m.session, -1))
	case "r":
		m.reset()
	case "u":
		if m.uploading {
			m.setStatus(StatusInfo, "An upload is already in progress")
			return m, nil
		}
		cmd := m.openForm()
		return m, cmd
	case "s":
		cmd := m.startSave()
		return m, cmd
	case "l":
		m.logPanelOpen = !m.logPanelOpen
		m.resizeLogViewport()
	case "v":
		if m.logPanelOpen {
			m.logLevel = logging.NextLevel(m.logLevel)
			if m.logReady {
				m.updateLogViewportContent()
			}
		}
	case "up", "k", "down", "j", "pgup", "pgdown", "g", "G":
		if m.logPanelOpen && m.logReady {
			m.scrollLogs(msg.String())
		}
	}
	return m, nil
}

// quit closes the connection before leaving so no retry outlives the viewer.
func (m Model) quit() (tea.Model, tea.Cmd) {
	if m.conn != nil {
		m.conn.Close()
	}
	return m, tea.Quit
}

// reset discards the session and reconnects from scratch. Messages still
// queued from the old connection carry an older generation and are dropped.
func (m *Model) reset() {
	m.logger.Info("resetting session")
	if m.conn != nil {
		m.conn.Close()
	}
	if m.backend != nil {
		m.backend.ResetStream()
	}
	m.session = feed.New()
	m.epoch++
	if m.conn != nil {
		if gen, ok := m.conn.Connect(); ok {
			m.minGeneration = gen
		}
	}
	m.setStatus(StatusInfo, "Session reset")
}

func (m Model) connect() tea.Cmd {
	if m.conn == nil {
		return nil
	}
	c := m.conn
	return func() tea.Msg {
		gen, _ := c.Connect()
		return connectStartedMsg{generation: gen}
	}
}

// waitForFeed returns a command that delivers the next feed message.
func (m Model) waitForFeed() tea.Cmd {
	if m.feedCh == nil {
		return nil
	}
	ch := m.feedCh
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

// consumeLogEntries returns a command that waits for log entries and
// drains whatever else is immediately available.
func (m Model) consumeLogEntries() tea.Cmd {
	if m.logCh == nil {
		return nil
	}
	ch := m.logCh
	return func() tea.Msg {
		entry, ok := <-ch
		if !ok {
			return nil
		}
		entries := []logging.LogEntry{entry}
		for range 50 {
			select {
			case e, ok := <-ch:
				if !ok {
					return logEntriesMsg{entries: entries}
				}
				entries = append(entries, e)
			default:
				return logEntriesMsg{entries: entries}
			}
		}
		return logEntriesMsg{entries: entries}
	}
}

func (m Model) fetchImages() tea.Cmd {
	if m.backend == nil {
		return nil
	}
	b := m.backend
	epoch := m.epoch
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		imgs, err := b.Images(ctx)
		return events.HydratedMsg{Images: imgs, Err: err, Epoch: epoch}
	}
}

func (m *Model) startUpload(path, style string) tea.Cmd {
	if m.backend == nil {
		m.setStatus(StatusError, "No backend configured")
		return nil
	}
	m.uploading = true
	m.setStatus(StatusLoading, "Uploading "+filepath.Base(path)+"...")
	b := m.backend
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		res, err := b.Upload(ctx, path, style)
		return events.UploadDoneMsg{FileURL: res.FileURL, Err: err}
	}
}

func (m *Model) startSave() tea.Cmd {
	imgs := feed.Filtered(m.session)
	if len(imgs) == 0 {
		m.setStatus(StatusInfo, "No images to save")
		return nil
	}
	if m.saving || m.backend == nil {
		return nil
	}
	m.saving = true
	dir := m.outDir
	label := feed.FilterLabel(m.session)
	m.setStatus(StatusLoading, fmt.Sprintf("Saving %d images (%s)...", len(imgs), label))
	b := m.backend
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		paths, err := b.SaveImages(ctx, imgs, dir)
		return imagesSavedMsg{dir: dir, paths: paths, err: err}
	}
}

// resizeLogViewport creates or resizes the log viewport to the current layout.
func (m *Model) resizeLogViewport() {
	if !m.logPanelOpen || m.width == 0 {
		return
	}
	layout := ComputeLayout(m.width, m.height, true)
	h := layout.Logs.Height - 1
	if h < 1 {
		h = 1
	}
	if !m.logReady {
		m.logViewport = viewport.New(layout.Logs.Width, h)
		m.logReady = true
	} else {
		m.logViewport.Width = layout.Logs.Width
		m.logViewport.Height = h
	}
	m.updateLogViewportContent()
}

func (m *Model) updateLogViewportContent() {
	visible := m.visibleLogs()
	lines := make([]string, 0, len(visible))
	for _, entry := range visible {
		lines = append(lines, m.renderLogEntry(entry))
	}
	atBottom := m.logViewport.AtBottom()
	m.logViewport.SetContent(strings.Join(lines, "\n"))
	if atBottom {
		m.logViewport.GotoBottom()
	}
}

func (m *Model) scrollLogs(key string) {
	switch key {
	case "up", "k":
		m.logViewport.ScrollUp(1)
	case "down", "j":
		m.logViewport.ScrollDown(1)
	case "pgup":
		m.logViewport.HalfViewUp()
	case "pgdown":
		m.logViewport.HalfViewDown()
	case "g":
		m.logViewport.GotoTop()
	case "G":
		m.logViewport.GotoBottom()
	}
}
