// pattern: Imperative Shell
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"floorcast/internal/config"
	"floorcast/internal/conn"
	"floorcast/internal/feed"
	"floorcast/internal/instance"
	"floorcast/internal/logging"
	"floorcast/internal/pipeline"
	"floorcast/internal/tui"
)

// watchOptions are the flags shared by "watch" and the bare viewer.
type watchOptions struct {
	url       string
	transport string
	plain     bool
	hydrate   bool
	out       string
}

func runWatchCommand(configDir string, args []string) error {
	fs := newFlagSet("watch")
	var opts watchOptions
	fs.StringVar(&opts.url, "url", "", "backend URL (default: discover local backend)")
	fs.StringVar(&opts.transport, "transport", "", "stream transport: sse or ws (default from config)")
	fs.BoolVar(&opts.plain, "plain", false, "print events as lines instead of the interactive viewer")
	fs.BoolVar(&opts.hydrate, "hydrate", true, "load already generated images on start")
	fs.StringVar(&opts.out, "out", "", "save images into DIR as they arrive (plain) or on \"s\" (viewer)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return watch(configDir, opts)
}

// RunViewer launches the interactive viewer with configured defaults.
func RunViewer(configDir string) error {
	return watch(configDir, watchOptions{hydrate: true})
}

func watch(configDir string, opts watchOptions) error {
	cfg, err := LoadConfig(configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
	}
	if opts.transport != "" {
		cfg.Client.Transport = opts.transport
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	client, err := newClient(configDir, opts.url)
	if err != nil {
		return err
	}

	logManager, err := openViewerLog(configDir, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logManager.Close() }()

	dialer := dialerFor(client, cfg.Client.Transport)

	if opts.plain {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		_, err := WatchPlain(ctx, PlainConfig{
			Dialer:  dialer,
			Delay:   cfg.Client.ReconnectDelay,
			Client:  client,
			Hydrate: opts.hydrate,
			OutDir:  opts.out,
			Writer:  os.Stdout,
			Logger:  logManager.For("conn"),
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	feedCh, notify := tui.NewFeedBridge()
	mgr := conn.NewManager(dialer, cfg.Client.ReconnectDelay, notify, logManager.For("conn"))
	defer mgr.Close()

	model := tui.NewModel(tui.Options{
		Theme:   cfg.Theme,
		Backend: client,
		Conn:    mgr,
		Feed:    feedCh,
		Logs:    logManager.Entries(),
		Logger:  logManager.For("tui"),
		Hydrate: opts.hydrate,
		OutDir:  opts.out,
	})

	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("viewer: %w", err)
	}
	return nil
}

// openViewerLog sends client-side logs to a file so they never draw over
// the viewer.
func openViewerLog(configDir, level string) (*logging.Manager, error) {
	lm, err := logging.NewManager(logging.Config{
		FilePath:   filepath.Join(ResolveDataDir(configDir), "viewer.log"),
		MaxSizeMB:  5,
		MaxBackups: 2,
		MaxAgeDays: 7,
		Level:      level,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	return lm, nil
}

func dialerFor(client *instance.Client, transport string) conn.Dialer {
	if transport == config.TransportWS {
		return client.SocketDialer()
	}
	return client.StreamDialer()
}

// PlainConfig configures WatchPlain.
type PlainConfig struct {
	Dialer conn.Dialer
	Delay  time.Duration
	Client *instance.Client
	// Hydrate prints and saves images generated before the stream opened.
	Hydrate bool
	// OutDir, if set, receives every image as it arrives.
	OutDir string
	Writer io.Writer
	Logger *logging.ScopedLogger
	// OnConnected runs once, after the backend's handshake.
	OnConnected func(ctx context.Context) error
	// UntilComplete stops the watch when the pipeline finishes or fails.
	// Only events after OnConnected returns count.
	UntilComplete bool
}

// WatchPlain follows the stream and prints one line per event until ctx is
// cancelled or, with UntilComplete, the pipeline ends. It returns the final
// session.
func WatchPlain(ctx context.Context, cfg PlainConfig) (feed.Session, error) {
	if cfg.Writer == nil {
		cfg.Writer = io.Discard
	}

	feedCh, notify := tui.NewFeedBridge()
	mgr := conn.NewManager(cfg.Dialer, cfg.Delay, notify, cfg.Logger)
	defer mgr.Close()

	reducer := feed.NewReducer()
	session := feed.New()
	saved := 0

	save := func() error {
		if cfg.OutDir == "" {
			return nil
		}
		if err := os.MkdirAll(cfg.OutDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		for ; saved < len(session.Images); saved++ {
			img := session.Images[saved]
			data, err := cfg.Client.ImageBytes(ctx, img)
			if err != nil {
				return err
			}
			path := filepath.Join(cfg.OutDir, instance.ImageFileName(saved+1, img, data))
			if err := os.WriteFile(path, data, 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", path, err)
			}
			fmt.Fprintf(cfg.Writer, "saved: %s\n", path)
		}
		return nil
	}

	if cfg.Hydrate && cfg.Client != nil {
		imgs, err := cfg.Client.Images(ctx)
		if err != nil {
			return session, fmt.Errorf("failed to load images: %w", err)
		}
		session = feed.Hydrate(session, imgs)
		fmt.Fprintf(cfg.Writer, "loaded %d existing images\n", len(session.Images))
		if err := save(); err != nil {
			return session, err
		}
	}

	gen, _ := mgr.Connect()

	hookDone := make(chan error, 1)
	hookStarted := false
	armed := cfg.OnConnected == nil

	// finished reports whether the watch should end, and with which error.
	finished := func() (bool, error) {
		if !cfg.UntilComplete || !armed {
			return false, nil
		}
		if session.Err != "" {
			return true, fmt.Errorf("pipeline failed: %s", session.Err)
		}
		return session.StatusText == pipeline.CompleteMessage, nil
	}

	for {
		select {
		case <-ctx.Done():
			return session, ctx.Err()

		case err := <-hookDone:
			if err != nil {
				return session, err
			}
			// The pipeline may already have finished while the hook ran.
			armed = true
			if done, err := finished(); done {
				return session, err
			}

		case msg := <-feedCh:
			if msg.Generation < gen {
				continue
			}
			session = reducer.Reduce(session, msg.Event)
			if line := describe(msg.Event, session); line != "" {
				fmt.Fprintln(cfg.Writer, line)
			}
			if err := save(); err != nil {
				return session, err
			}

			if !hookStarted && cfg.OnConnected != nil && session.Status == feed.StatusConnected {
				hookStarted = true
				go func() { hookDone <- cfg.OnConnected(ctx) }()
			}

			if done, err := finished(); done {
				return session, err
			}
		}
	}
}

// describe renders ev as one line of plain output, using s (already
// reduced with ev) for names the event only references by id.
func describe(ev feed.Event, s feed.Session) string {
	switch ev := ev.(type) {
	case feed.Connected:
		if ev.Message == "" {
			return "connected"
		}
		return "connected: " + ev.Message
	case feed.StatusUpdate:
		return "status: " + s.StatusText
	case feed.StyleDescription:
		return "style: " + ev.Description
	case feed.RoomDetected:
		line := "room: " + s.RoomName(ev.Room.ID)
		if dims := ev.Room.DimensionsText(); dims != "" {
			line += " (" + dims + ")"
		}
		return line
	case feed.View, feed.FinalAssembly:
		if len(s.Images) == 0 {
			return ""
		}
		img := s.Images[len(s.Images)-1]
		return fmt.Sprintf("image: %s [%s]", img.Title, img.Kind.Label())
	case feed.ServerError:
		return "error: " + s.Err
	case feed.Unknown:
		return "unknown event: " + ev.Type
	case feed.Malformed:
		return fmt.Sprintf("parse error: %v", ev.Err)
	case feed.LinkConnecting:
		return "connecting..."
	case feed.LinkOpened:
		return "stream open"
	case feed.LinkErrored:
		if ev.RetryIn > 0 {
			return fmt.Sprintf("connection lost: %v, retrying in %s", ev.Err, ev.RetryIn)
		}
		return fmt.Sprintf("connection lost: %v", ev.Err)
	case feed.LinkClosed:
		return "stream closed"
	}
	return ""
}
