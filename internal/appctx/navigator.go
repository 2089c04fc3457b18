package appctx

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Navigator is the CLI's sign-in destination: there is no screen to switch
// to, so the user is told how to sign in again.
type Navigator struct {
	mu sync.Mutex
	w  io.Writer
}

// NewNavigator creates a navigator that writes to w.
func NewNavigator(w io.Writer) *Navigator {
	return &Navigator{w: w}
}

// NavigateToSignIn prints the sign-in instruction.
func (n *Navigator) NavigateToSignIn(_ context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, err := fmt.Fprintln(n.w, "You have been signed out. Sign in again with: booth auth login")
	return err
}
