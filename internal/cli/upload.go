// pattern: Imperative Shell
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

func runUploadCommand(configDir string, args []string) error {
	fs := newFlagSet("upload")
	url := fs.String("url", "", "backend URL (default: discover local backend)")
	style := fs.String("style", "", "interior style, e.g. \"japandi\" (default: backend default)")
	noWatch := fs.Bool("no-watch", false, "return once the upload is accepted")
	out := fs.String("out", "", "save generated images into DIR")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("expected exactly one FILE argument")
	}
	path := fs.Arg(0)

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("file not found: %s", path)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}

	cfg, err := LoadConfig(configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
	}

	client, err := newClient(configDir, *url)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	upload := func(ctx context.Context, w io.Writer) error {
		res, err := client.Upload(ctx, path, *style)
		if err != nil {
			return fmt.Errorf("upload failed: %w", err)
		}
		fmt.Fprintf(w, "uploaded: %s (%s)\n", res.Filename, res.FileURL)
		return nil
	}

	if *noWatch {
		return upload(ctx, os.Stdout)
	}

	logManager, err := openViewerLog(configDir, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logManager.Close() }()

	// The stream is opened first so no progress event is missed.
	_, err = WatchPlain(ctx, PlainConfig{
		Dialer: dialerFor(client, cfg.Client.Transport),
		Delay:  cfg.Client.ReconnectDelay,
		Client: client,
		OutDir: *out,
		Writer: os.Stdout,
		Logger: logManager.For("conn"),
		OnConnected: func(ctx context.Context) error {
			return upload(ctx, os.Stdout)
		},
		UntilComplete: true,
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
