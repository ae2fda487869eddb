// pattern: Imperative Shell
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"floorcast/internal/config"
	"floorcast/internal/inbox"
	"floorcast/internal/instance"
	"floorcast/internal/logging"
	"floorcast/internal/pipeline"
	"floorcast/internal/storage"
	"floorcast/internal/web"
)

// shutdownTimeout bounds the graceful HTTP shutdown.
const shutdownTimeout = 5 * time.Second

// ServeOptions configures a backend run.
type ServeOptions struct {
	Config  config.Config
	DataDir string
	// Console receives human-readable logs. Nil keeps logs in the file only.
	Console io.Writer
	// Ready, if set, is called with the bound address once the server listens.
	Ready func(addr string)
}

func runServeCommand(configDir string, args []string) error {
	fs := newFlagSet("serve")
	bind := fs.String("bind", "", "address to bind (default from config)")
	port := fs.IntP("port", "p", -1, "port to listen on, 0 for any (default from config)")
	scripted := fs.Bool("scripted", false, "use the offline scripted generator")
	inboxDir := fs.String("inbox", "", "watch DIR for dropped floor plans")
	envFile := fs.String("env-file", ".env", "dotenv file with secrets")
	if err := fs.Parse(args); err != nil {
		return err
	}

	// The dotenv file is optional; real environment variables win.
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", *envFile, err)
	}

	cfg, err := LoadConfig(configDir)
	if err != nil {
		return err
	}
	if *bind != "" {
		cfg.Server.Bind = *bind
	}
	if *port >= 0 {
		cfg.Server.Port = *port
	}
	if *scripted {
		cfg.Pipeline.Generator = config.GeneratorScripted
	}
	if *inboxDir != "" {
		cfg.Server.InboxDir = *inboxDir
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return Serve(ctx, ServeOptions{
		Config:  cfg,
		DataDir: ResolveDataDir(configDir),
		Console: os.Stderr,
		Ready: func(addr string) {
			fmt.Fprintf(os.Stdout, "floorcast backend listening on http://%s\n", addr)
		},
	})
}

// Serve runs the backend until ctx is cancelled: HTTP API, job runner and,
// when configured, the inbox watcher. It holds the single-instance lock for
// its lifetime and advertises its address in the port file.
func Serve(ctx context.Context, opts ServeOptions) error {
	cfg := opts.Config

	fl, err := instance.Lock(opts.DataDir)
	if err != nil {
		return err
	}
	defer instance.Cleanup(opts.DataDir, fl)

	logManager, err := logging.NewManager(logging.Config{
		FilePath:   filepath.Join(opts.DataDir, "floorcast.log"),
		MaxSizeMB:  10,
		MaxBackups: 3,
		MaxAgeDays: 7,
		Level:      cfg.LogLevel,
		Console:    opts.Console,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer func() { _ = logManager.Close() }()

	logger := logManager.For("app")
	logger.Info("backend starting", "storage", cfg.Storage.Backend, "generator", cfg.Pipeline.Generator)

	store, err := storage.New(ctx, cfg.Storage, cfg.Server.UploadDir)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	gen, err := pipeline.NewGenerator(ctx, cfg.Pipeline)
	if err != nil {
		return fmt.Errorf("generator: %w", err)
	}

	hub := web.NewHub(cfg.Server.HistorySize, logManager.For("web.hub"))
	runner := web.NewRunner(pipeline.New(gen, logManager.For("pipeline")), hub, 0, logManager.For("web.jobs"))

	srv := web.New(web.Config{
		Bind:         cfg.Server.Bind,
		Port:         cfg.Server.Port,
		DefaultStyle: cfg.Server.DefaultStyle,
	}, hub, store, runner, logManager)

	var watcher *inbox.Watcher
	if cfg.Server.InboxDir != "" {
		sub := web.Submitter{Store: store, Runner: runner, DefaultStyle: cfg.Server.DefaultStyle}
		watcher, err = inbox.NewWatcher(cfg.Server.InboxDir, sub, "", logManager.For("inbox"))
		if err != nil {
			return err
		}
	}

	ln, err := srv.Listen()
	if err != nil {
		return err
	}
	if err := instance.WritePort(opts.DataDir, srv.Addr()); err != nil {
		logger.Error("failed to write port file", "error", err)
	}
	if opts.Ready != nil {
		opts.Ready(srv.Addr())
	}

	g, gctx := errgroup.WithContext(ctx)

	if err := runner.Start(gctx); err != nil {
		_ = ln.Close()
		return err
	}

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("web server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("web server shutdown error", "error", err)
		}
		<-runner.Done()
		return nil
	})

	if watcher != nil {
		g.Go(func() error {
			if err := watcher.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("inbox: %w", err)
			}
			return nil
		})
	}

	err = g.Wait()
	logger.Info("backend stopped")
	return err
}
