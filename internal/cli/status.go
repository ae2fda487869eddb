// pattern: Imperative Shell
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
)

func runStatusCommand(configDir string, args []string, w io.Writer) error {
	fs := newFlagSet("status")
	url := fs.String("url", "", "backend URL (default: discover local backend)")
	asJSON := fs.Bool("json", false, "print the health report as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(configDir, *url)
	if err != nil {
		return err
	}
	h, err := client.Health(context.Background())
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(h)
	}

	uploads := "enabled"
	if !h.Uploads {
		uploads = "disabled"
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Backend:\t%s (%s)\n", client.BaseURL(), h.Status)
	fmt.Fprintf(tw, "Uploads:\t%s\n", uploads)
	fmt.Fprintf(tw, "Viewers:\t%d\n", h.Subscribers)
	fmt.Fprintf(tw, "Images:\t%d\n", h.Images)
	fmt.Fprintf(tw, "Queued jobs:\t%d\n", h.PendingJobs)
	if h.Dropped > 0 {
		fmt.Fprintf(tw, "Dropped events:\t%d\n", h.Dropped)
	}
	return tw.Flush()
}
