// pattern: Functional Core
package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

// newTestApp returns an App whose help and errors go to the returned buffer
// and whose exit code is recorded instead of terminating the test.
func newTestApp() (*App, *bytes.Buffer, *int) {
	app := NewApp("1.0.0")
	buf := &bytes.Buffer{}
	code := -1
	app.stderr = buf
	app.exit = func(c int) { code = c }
	return app, buf, &code
}

func TestApp_PrintHelp_ShowsCommandsAndGroups(t *testing.T) {
	app := NewApp("1.0.0")
	app.AddCommand(&Command{Name: "serve", Summary: "Run the backend"})
	app.AddCommand(&Command{Name: "watch", Summary: "Follow the stream", RequiresBackend: true})
	app.AddGroup("images", "List or save generated images")

	buf := &bytes.Buffer{}
	app.PrintHelp(buf)
	output := buf.String()

	for _, want := range []string{
		"Usage: floorcast",
		"serve",
		"Follow the stream (requires running backend)",
		"Command Groups (requires running backend)",
		"images",
		"Launch the interactive viewer",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("help missing %q:\n%s", want, output)
		}
	}
	if strings.Contains(output, "Run the backend (requires") {
		t.Error("serve should not be marked as requiring a backend")
	}
}

func TestApp_Execute_NoArgs_ReturnsTrueForViewer(t *testing.T) {
	app := NewApp("1.0.0")
	if !app.Execute(nil) {
		t.Error("Execute(nil) = false, want true")
	}
}

func TestApp_Execute_UngroupedCommand_Dispatches(t *testing.T) {
	app, _, code := newTestApp()
	var got []string
	app.AddCommand(&Command{
		Name: "upload",
		Run: func(args []string) error {
			got = args
			return nil
		},
	})

	if app.Execute([]string{"upload", "plan.png", "--style", "loft"}) {
		t.Error("Execute with command returned true")
	}
	if strings.Join(got, " ") != "plan.png --style loft" {
		t.Errorf("args = %v", got)
	}
	if *code != -1 {
		t.Errorf("exit called with %d", *code)
	}
}

func TestApp_Execute_GroupCommand_Dispatches(t *testing.T) {
	app, _, _ := newTestApp()
	group := app.AddGroup("images", "Images")
	var got []string
	group.AddCommand(&Command{
		Name: "save",
		Run: func(args []string) error {
			got = args
			return nil
		},
	})

	app.Execute([]string{"images", "save", "--out", "renders"})
	if len(got) != 2 || got[1] != "renders" {
		t.Errorf("args = %v, want [--out renders]", got)
	}
}

func TestApp_Execute_GroupHelp(t *testing.T) {
	for _, arg := range []string{"", "help", "--help", "-h"} {
		t.Run(arg, func(t *testing.T) {
			app, buf, code := newTestApp()
			group := app.AddGroup("images", "Images")
			group.AddCommand(&Command{Name: "list", Summary: "List generated images"})
			group.AddCommand(&Command{Name: "save", Summary: "Download generated images"})

			args := []string{"images"}
			if arg != "" {
				args = append(args, arg)
			}
			app.Execute(args)

			output := buf.String()
			if !strings.Contains(output, "Usage: floorcast images <command>") {
				t.Errorf("missing group usage:\n%s", output)
			}
			if strings.Index(output, "list") > strings.Index(output, "save") {
				t.Error("group commands not sorted")
			}
			if *code != -1 {
				t.Errorf("help should not exit, got code %d", *code)
			}
		})
	}
}

func TestApp_Execute_CommandHelp_PrintsUsage(t *testing.T) {
	app, buf, _ := newTestApp()
	runCalled := false
	app.AddCommand(&Command{
		Name:  "watch",
		Usage: "Usage: floorcast watch [--url URL]",
		Run: func(args []string) error {
			runCalled = true
			return nil
		},
	})

	app.Execute([]string{"watch", "--plain", "-h"})

	if runCalled {
		t.Error("Run was called, should have printed usage instead")
	}
	if !strings.Contains(buf.String(), "Usage: floorcast watch") {
		t.Errorf("usage output = %q", buf.String())
	}
}

func TestApp_Execute_CommandError_ExitsWithCode1(t *testing.T) {
	app, buf, code := newTestApp()
	app.AddCommand(&Command{
		Name: "upload",
		Run: func(args []string) error {
			return errors.New("file not found: plan.png")
		},
	})

	app.Execute([]string{"upload"})

	if *code != 1 {
		t.Errorf("exit code = %d, want 1", *code)
	}
	if !strings.Contains(buf.String(), "error: file not found: plan.png") {
		t.Errorf("stderr = %q", buf.String())
	}
}

func TestApp_Execute_UnknownCommand_ExitsWithCode1(t *testing.T) {
	app, buf, code := newTestApp()
	app.AddCommand(&Command{Name: "serve", Summary: "Run the backend"})

	app.Execute([]string{"bogus"})

	if *code != 1 {
		t.Errorf("exit code = %d, want 1", *code)
	}
	if !strings.Contains(buf.String(), "Usage: floorcast") {
		t.Error("unknown command should print top-level help")
	}
}

func TestApp_Execute_UnknownGroupCommand_ExitsWithCode1(t *testing.T) {
	app, buf, code := newTestApp()
	app.AddGroup("images", "Images")

	app.Execute([]string{"images", "delete"})

	if *code != 1 {
		t.Errorf("exit code = %d, want 1", *code)
	}
	if !strings.Contains(buf.String(), "floorcast images") {
		t.Error("unknown group command should print group help")
	}
}
