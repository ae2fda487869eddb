package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"floorcast/internal/events"
	"floorcast/internal/feed"
	"floorcast/internal/instance"
	"floorcast/internal/logging"
)

// maxLogEntries bounds the log panel buffer.
const maxLogEntries = 1000

// feedBuffer sizes the channel between the connection manager and the
// model. The manager emits synchronously from Close and Connect, which the
// model calls from Update, so the buffer must absorb those without the
// event loop reading.
const feedBuffer = 1024

// Backend is the part of the HTTP client the viewer uses.
// *instance.Client satisfies it.
type Backend interface {
	BaseURL() string
	Upload(ctx context.Context, path, style string) (instance.UploadResult, error)
	Images(ctx context.Context) ([]feed.Image, error)
	SaveImages(ctx context.Context, imgs []feed.Image, dir string) ([]string, error)
	ResetStream()
}

// Connector owns the feed connection. *conn.Manager satisfies it.
type Connector interface {
	Connect() (uint64, bool)
	Close()
}

// StatusLevel represents the severity of a status bar message.
type StatusLevel int

const (
	StatusInfo StatusLevel = iota
	StatusSuccess
	StatusError
	StatusLoading
)

// String returns the string representation of the status level.
func (l StatusLevel) String() string {
	switch l {
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	case StatusLoading:
		return "loading"
	default:
		return "info"
	}
}

// Options configures a Model.
type Options struct {
	Theme   string
	Backend Backend
	Conn    Connector
	// Feed carries messages from the connection manager; see NewFeedBridge.
	Feed <-chan events.FeedMsg
	// Logs feeds the log panel. May be nil.
	Logs   <-chan logging.LogEntry
	Logger *logging.ScopedLogger
	// Hydrate fetches already generated images on start.
	Hydrate bool
	// OutDir is where "s" saves the filtered images.
	OutDir string
}

// Model represents the TUI application state.
type Model struct {
	width  int
	height int
	styles *Styles
	logger *logging.ScopedLogger

	backend Backend
	conn    Connector
	feedCh  <-chan events.FeedMsg
	logCh   <-chan logging.LogEntry
	hydrate bool
	outDir  string

	reducer feed.Reducer
	session feed.Session

	// minGeneration is the generation of the connection started by the
	// last reset. Feed messages from older generations are dropped.
	minGeneration uint64

	// epoch counts resets. Hydration results from an older epoch are dropped.
	epoch uint64

	statusSpinner spinner.Model
	statusLevel   StatusLevel
	statusMessage string

	formOpen   bool
	formInputs []textinput.Model
	formFocus  int
	formError  string
	uploading  bool
	saving     bool

	logPanelOpen bool
	logEntries   []logging.LogEntry
	logLevel     string // minimum level shown in the log panel
	logViewport  viewport.Model
	logReady     bool
}

// NewFeedBridge returns the channel a Model reads feed messages from and
// the notify function to pass to conn.NewManager.
func NewFeedBridge() (<-chan events.FeedMsg, func(any)) {
	ch := make(chan events.FeedMsg, feedBuffer)
	return ch, func(msg any) {
		if fm, ok := msg.(events.FeedMsg); ok {
			ch <- fm
		}
	}
}

// NewModel creates a new TUI model.
func NewModel(opts Options) Model {
	styles := NewStyles(opts.Theme)
	logger := opts.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}

	s := spinner.New()
	s.Spinner = spinner.MiniDot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(styles.flavor.Teal().Hex))

	outDir := opts.OutDir
	if outDir == "" {
		outDir = "renders"
	}

	return Model{
		styles:        styles,
		logger:        logger,
		backend:       opts.Backend,
		conn:          opts.Conn,
		feedCh:        opts.Feed,
		logCh:         opts.Logs,
		hydrate:       opts.Hydrate,
		outDir:        outDir,
		reducer:       feed.NewReducer(),
		session:       feed.New(),
		statusSpinner: s,
		formInputs:    newFormInputs(),
		logLevel:      "DEBUG",
	}
}

// Init connects to the feed and starts the background consumers.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		m.statusSpinner.Tick,
		m.connect(),
		m.waitForFeed(),
		m.consumeLogEntries(),
	}
	if m.hydrate {
		cmds = append(cmds, m.fetchImages())
	}
	return tea.Batch(cmds...)
}

// Session returns the current feed session.
func (m Model) Session() feed.Session {
	return m.session
}

// StatusMessage returns the status bar message and its level.
func (m Model) StatusMessage() (string, StatusLevel) {
	return m.statusMessage, m.statusLevel
}

// visibleLogs returns the buffered entries at or above the panel's level.
func (m Model) visibleLogs() []logging.LogEntry {
	out := make([]logging.LogEntry, 0, len(m.logEntries))
	for _, e := range m.logEntries {
		if e.AtLeast(m.logLevel) {
			out = append(out, e)
		}
	}
	return out
}

// addLogEntry appends to the log buffer, dropping the oldest past the cap.
func (m *Model) addLogEntry(entry logging.LogEntry) {
	m.logEntries = append(m.logEntries, entry)
	if len(m.logEntries) > maxLogEntries {
		m.logEntries = m.logEntries[len(m.logEntries)-maxLogEntries:]
	}
}

func (m *Model) setStatus(level StatusLevel, message string) {
	m.statusLevel = level
	m.statusMessage = message
}

func (m *Model) clearStatus() {
	m.statusLevel = StatusInfo
	m.statusMessage = ""
}
