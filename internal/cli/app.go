// pattern: Functional Core
package cli

import (
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
)

// Command represents a single CLI command with its metadata and handler.
type Command struct {
	Name    string
	Summary string
	Usage   string
	// RequiresBackend marks commands that talk to a running backend.
	RequiresBackend bool
	Run             func(args []string) error
}

// Group represents a group of related commands.
type Group struct {
	Name     string
	Summary  string
	Commands map[string]*Command
}

// App represents the top-level CLI application with groups and ungrouped commands.
type App struct {
	groups   map[string]*Group
	commands map[string]*Command
	version  string
	// exit is os.Exit outside tests.
	exit   func(int)
	stderr io.Writer
}

// NewApp creates a new CLI application with the given version.
func NewApp(version string) *App {
	return &App{
		groups:   make(map[string]*Group),
		commands: make(map[string]*Command),
		version:  version,
		exit:     os.Exit,
		stderr:   os.Stderr,
	}
}

// AddGroup creates and registers a new command group.
func (a *App) AddGroup(name, summary string) *Group {
	g := &Group{
		Name:     name,
		Summary:  summary,
		Commands: make(map[string]*Command),
	}
	a.groups[name] = g
	return g
}

// AddCommand registers an ungrouped (top-level) command.
func (a *App) AddCommand(cmd *Command) {
	a.commands[cmd.Name] = cmd
}

// AddCommand registers a command in the group.
func (g *Group) AddCommand(cmd *Command) {
	g.Commands[cmd.Name] = cmd
}

// Execute dispatches the CLI arguments to the appropriate command.
// Returns true if the viewer should be launched, false otherwise.
func (a *App) Execute(args []string) bool {
	// No args: launch the viewer
	if len(args) == 0 {
		return true
	}

	cmdName := args[0]

	if cmd, ok := a.commands[cmdName]; ok {
		a.run(cmd, args[1:])
		return false
	}

	if group, ok := a.groups[cmdName]; ok {
		// Group with no subcommand, "help", or --help/-h
		if len(args) < 2 || args[1] == "help" || args[1] == "--help" || args[1] == "-h" {
			group.PrintHelp(a.stderr)
			return false
		}

		if cmd, ok := group.Commands[args[1]]; ok {
			a.run(cmd, args[2:])
			return false
		}

		// Unknown command in group
		group.PrintHelp(a.stderr)
		a.exit(1)
		return false
	}

	// Unknown command
	a.PrintHelp(a.stderr)
	a.exit(1)
	return false
}

// run executes cmd, printing its usage for --help and its error, if any,
// before exiting non-zero.
func (a *App) run(cmd *Command, args []string) {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			fmt.Fprintf(a.stderr, "%s\n", cmd.Usage)
			return
		}
	}
	if err := cmd.Run(args); err != nil {
		fmt.Fprintf(a.stderr, "error: %v\n", err)
		a.exit(1)
	}
}

// PrintHelp prints the top-level help text.
func (a *App) PrintHelp(w io.Writer) {
	fmt.Fprintf(w, "Usage: floorcast [options] [command]\n\n")
	fmt.Fprintf(w, "Commands:\n")

	for _, name := range []string{"serve", "watch", "upload", "status", "cleanup", "version"} {
		if cmd, ok := a.commands[name]; ok {
			summary := cmd.Summary
			if cmd.RequiresBackend {
				summary += " (requires running backend)"
			}
			fmt.Fprintf(w, "  %-10s %s\n", cmd.Name, summary)
		}
	}

	fmt.Fprintf(w, "  %-10s %s\n", "(none)", "Launch the interactive viewer")

	if len(a.groups) > 0 {
		fmt.Fprintf(w, "\nCommand Groups (requires running backend):\n")
		for _, name := range slices.Sorted(maps.Keys(a.groups)) {
			group := a.groups[name]
			fmt.Fprintf(w, "  %-10s %s\n", group.Name, group.Summary)
		}
	}

	fmt.Fprintf(w, "\nUse \"floorcast <group> help\" for group details.\n\n")
	fmt.Fprintf(w, "Options:\n")
}

// PrintHelp prints help for a specific group.
func (g *Group) PrintHelp(w io.Writer) {
	fmt.Fprintf(w, "Usage: floorcast %s <command>\n\n", g.Name)
	fmt.Fprintf(w, "Commands:\n")
	// Sort command names for deterministic output
	names := slices.Sorted(maps.Keys(g.Commands))
	for _, name := range names {
		cmd := g.Commands[name]
		fmt.Fprintf(w, "  %-10s %s\n", cmd.Name, cmd.Summary)
	}
	fmt.Fprintf(w, "\nUse \"floorcast %s <command> --help\" for command details.\n", g.Name)
}
