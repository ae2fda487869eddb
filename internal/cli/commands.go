// pattern: Imperative Shell
package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"floorcast/internal/config"
	"floorcast/internal/instance"
)

// ResolveDataDir returns the directory holding the lock, port and log files.
// If configDir is specified, uses that; otherwise the XDG state directory.
func ResolveDataDir(configDir string) string {
	if configDir != "" {
		return configDir
	}
	return config.DataDir()
}

// LoadConfig loads the configuration from the specified directory or the
// default location. A parse or validation error is returned together with
// the defaults.
func LoadConfig(configDir string) (config.Config, error) {
	if configDir != "" {
		return config.LoadFromDir(configDir)
	}
	return config.Load()
}

// BuildApp creates and configures the CLI application with all commands and groups.
func BuildApp(version string, configDir string) *App {
	app := NewApp(version)

	app.AddCommand(&Command{
		Name:    "serve",
		Summary: "Run the backend: uploads, pipeline and event stream",
		Usage:   "Usage: floorcast serve [--bind ADDR] [--port N] [--scripted] [--inbox DIR]",
		Run: func(args []string) error {
			return runServeCommand(configDir, args)
		},
	})

	app.AddCommand(&Command{
		Name:            "watch",
		Summary:         "Follow the event stream",
		Usage:           "Usage: floorcast watch [--url URL] [--transport sse|ws] [--plain] [--hydrate] [--out DIR]",
		RequiresBackend: true,
		Run: func(args []string) error {
			return runWatchCommand(configDir, args)
		},
	})

	app.AddCommand(&Command{
		Name:            "upload",
		Summary:         "Upload a floor plan and follow its progress",
		Usage:           "Usage: floorcast upload FILE [--url URL] [--style S] [--no-watch] [--out DIR]",
		RequiresBackend: true,
		Run: func(args []string) error {
			return runUploadCommand(configDir, args)
		},
	})

	app.AddCommand(&Command{
		Name:            "status",
		Summary:         "Show backend health and load",
		Usage:           "Usage: floorcast status [--url URL] [--json]",
		RequiresBackend: true,
		Run: func(args []string) error {
			return runStatusCommand(configDir, args, os.Stdout)
		},
	})

	app.AddCommand(&Command{
		Name:    "cleanup",
		Summary: "Remove stale lock/port files from a crashed backend",
		Usage:   "Usage: floorcast cleanup",
		Run: func(args []string) error {
			return runCleanupCommand(configDir)
		},
	})

	app.AddCommand(&Command{
		Name:    "version",
		Summary: "Print version and exit",
		Usage:   "Usage: floorcast version",
		Run: func(args []string) error {
			fmt.Println(version)
			return nil
		},
	})

	imagesGroup := app.AddGroup("images", "List or save generated images")
	RegisterImageCommands(imagesGroup, configDir)

	return app
}

// newFlagSet returns a pflag set that reports errors instead of exiting.
func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

// clientTimeout covers uploads and image downloads, which can be large.
const clientTimeout = 2 * time.Minute

// newClient resolves the backend address from --url, client.base_url or the
// running local backend, in that order.
func newClient(configDir, baseURL string) (*instance.Client, error) {
	if baseURL == "" {
		cfg, _ := LoadConfig(configDir)
		baseURL = cfg.Client.BaseURL
	}
	url, err := instance.Resolve(baseURL, ResolveDataDir(configDir))
	if err != nil {
		return nil, err
	}
	return instance.NewClientWithTimeout(url, clientTimeout), nil
}

// runCleanupCommand removes stale lock and port files from a crashed backend.
func runCleanupCommand(configDir string) error {
	dataDir := ResolveDataDir(configDir)

	// Try to acquire the lock to verify no backend is actually running
	fl, err := instance.Lock(dataDir)
	if err != nil {
		return fmt.Errorf("a floorcast backend appears to be running, stop it first")
	}
	// We got the lock, so nothing is running. Clean up and release.
	instance.Cleanup(dataDir, fl)
	fmt.Fprintln(os.Stdout, "Cleaned up stale lock and port files.")
	return nil
}
