// Package notify shows short user-facing notices for gallery operations.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/atotto/clipboard"
	"github.com/eteran/gallery/internal/media"
)

// Toast prints one styled line per notice. It is safe for concurrent use.
type Toast struct {
	mu      sync.Mutex
	w       io.Writer
	verbose bool
}

func NewToast(w io.Writer, verbose bool) *Toast {
	return &Toast{w: w, verbose: verbose}
}

func (t *Toast) Notify(_ context.Context, n media.Notice) {
	line := styleError.Render(iconError + " " + n.Message)
	if t.verbose && n.Err != nil {
		line += " " + styleMuted.Render("("+n.Err.Error()+")")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.w, line)
}

// Saved prints a success line for a stored asset.
func (t *Toast) Saved(loc media.Location) {
	line := styleSuccess.Render(iconSuccess+" Saved") + " " + loc.URI
	if loc.Path != "" {
		line += " " + styleMuted.Render(loc.Path)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.w, line)
}

var (
	clipboardAvailable = func() bool { return !clipboard.Unsupported }
	writeClipboard     = clipboard.WriteAll
)

// Share places the location of a stored asset on the system clipboard so
// it can be pasted into another application. The filesystem path is
// preferred when the backend has one.
func Share(loc media.Location) error {
	if !clipboardAvailable() {
		return fmt.Errorf("clipboard is not available on this system")
	}

	text := loc.Path
	if text == "" {
		text = loc.URI
	}
	if text == "" {
		return fmt.Errorf("nothing to share for %q", loc.ID)
	}

	if err := writeClipboard(text); err != nil {
		return fmt.Errorf("failed to copy location to clipboard: %w", err)
	}

	slog.Debug("Copied location to clipboard", "id", loc.ID, "text", text)
	return nil
}
