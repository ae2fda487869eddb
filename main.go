// pattern: Imperative Shell
package main

import (
	"fmt"
	"io"
	"os"

	flag "github.com/spf13/pflag"

	"floorcast/internal/cli"
)

var version = "dev"

var configDir = flag.StringP("config-dir", "c", "", "config directory (default: ~/.config/floorcast)")

func main() {
	// Stop parsing flags after the first non-flag arg (the subcommand),
	// so that --help after a subcommand is handled by the subcommand.
	flag.CommandLine.SetInterspersed(false)

	// Override flag.Usage before Parse so --help uses the CLI app's help
	flag.Usage = func() {
		usage(os.Stderr)
	}

	flag.Parse()

	app := cli.BuildApp(version, *configDir)

	if app.Execute(flag.Args()) {
		if err := cli.RunViewer(*configDir); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
}

// usage prints the command overview followed by the global flags.
func usage(w io.Writer) {
	cli.BuildApp(version, *configDir).PrintHelp(w)
	flag.CommandLine.SetOutput(w)
	flag.PrintDefaults()
}
