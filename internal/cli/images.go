// pattern: Imperative Shell
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"floorcast/internal/feed"
)

// RegisterImageCommands adds the "images" group commands.
func RegisterImageCommands(group *Group, configDir string) {
	group.AddCommand(&Command{
		Name:    "list",
		Summary: "List generated images",
		Usage:   "Usage: floorcast images list [--url URL] [--json]",
		Run: func(args []string) error {
			return runImagesList(configDir, args, os.Stdout)
		},
	})

	group.AddCommand(&Command{
		Name:    "save",
		Summary: "Download generated images",
		Usage:   "Usage: floorcast images save [--url URL] [--out DIR] [--room ROOM]",
		Run: func(args []string) error {
			return runImagesSave(configDir, args, os.Stdout)
		},
	})
}

func runImagesList(configDir string, args []string, w io.Writer) error {
	fs := newFlagSet("images list")
	url := fs.String("url", "", "backend URL (default: discover local backend)")
	asJSON := fs.Bool("json", false, "print the gallery as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	imgs, err := fetchImages(configDir, *url)
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(imgs)
	}

	if len(imgs) == 0 {
		fmt.Fprintln(w, "No images yet.")
		return nil
	}
	for _, img := range imgs {
		fmt.Fprintf(w, "%-20s %-18s %s\n", img.RoomName, img.Kind.Label(), img.Title)
	}
	return nil
}

func runImagesSave(configDir string, args []string, w io.Writer) error {
	fs := newFlagSet("images save")
	url := fs.String("url", "", "backend URL (default: discover local backend)")
	out := fs.String("out", "renders", "output directory")
	room := fs.String("room", "", "only images of ROOM (id or name)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(configDir, *url)
	if err != nil {
		return err
	}
	ctx := context.Background()

	imgs, err := client.Images(ctx)
	if err != nil {
		return err
	}
	imgs = filterByRoom(imgs, *room)
	if len(imgs) == 0 {
		fmt.Fprintln(w, "No images to save.")
		return nil
	}

	paths, err := client.SaveImages(ctx, imgs, *out)
	for _, p := range paths {
		fmt.Fprintln(w, p)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Saved %d images to %s\n", len(paths), *out)
	return nil
}

func fetchImages(configDir, url string) ([]feed.Image, error) {
	client, err := newClient(configDir, url)
	if err != nil {
		return nil, err
	}
	return client.Images(context.Background())
}

// filterByRoom keeps the images whose room id or name matches room,
// ignoring case. An empty room keeps everything.
func filterByRoom(imgs []feed.Image, room string) []feed.Image {
	if room == "" {
		return imgs
	}
	var out []feed.Image
	for _, img := range imgs {
		if strings.EqualFold(img.RoomID, room) || strings.EqualFold(img.RoomName, room) {
			out = append(out, img)
		}
	}
	return out
}
