// Package clipboard writes text to the system clipboard. Callers fall back
// to the terminal's OSC52 escape when no native clipboard is reachable, and
// finally to displaying the text for manual copy — a write request is never
// silently dropped.
package clipboard

import (
	"errors"
	"fmt"
	"io"

	"github.com/atotto/clipboard"
	"github.com/aymanbagabas/go-osc52/v2"
)

// ErrUnavailable means no native clipboard mechanism exists on this system
// (no display server, no pbcopy/xclip equivalent).
var ErrUnavailable = errors.New("system clipboard unavailable")

// Write puts text on the system clipboard.
func Write(text string) error {
	if clipboard.Unsupported {
		return ErrUnavailable
	}
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("writing clipboard: %w", err)
	}
	return nil
}

// WriteOSC52 asks the terminal emulator to set its clipboard via the OSC52
// escape sequence. It works over SSH where no native clipboard is reachable,
// but only terminals that implement the extension honor it.
func WriteOSC52(w io.Writer, text string) error {
	if _, err := osc52.New(text).WriteTo(w); err != nil {
		return fmt.Errorf("writing osc52 sequence: %w", err)
	}
	return nil
}
