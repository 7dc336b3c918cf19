// Package confirm gates destructive actions behind an explicit user answer.
package confirm

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// Confirmer asks the user to approve a destructive action.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}

// Func adapts a function to Confirmer.
type Func func(ctx context.Context, prompt string) bool

// Confirm implements Confirmer.
func (f Func) Confirm(ctx context.Context, prompt string) bool { return f(ctx, prompt) }

// Answer is a Confirmer with a fixed reply, for answers collected elsewhere
// (a --yes flag, a UI dialog that already ran).
type Answer bool

// Confirm implements Confirmer.
func (a Answer) Confirm(context.Context, string) bool { return bool(a) }

// Approved reports whether c approves prompt. A nil Confirmer never approves.
func Approved(ctx context.Context, c Confirmer, prompt string) bool {
	if c == nil {
		return false
	}
	return c.Confirm(ctx, prompt)
}

// Terminal prompts on out and reads a y/N answer from in.
type Terminal struct {
	In  io.Reader
	Out io.Writer
}

// Confirm implements Confirmer. Anything but y or yes declines.
func (t Terminal) Confirm(_ context.Context, prompt string) bool {
	_, _ = fmt.Fprintf(t.Out, "%s [y/N]: ", prompt)
	line, err := bufio.NewReader(t.In).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
