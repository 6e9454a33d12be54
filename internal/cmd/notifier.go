package cmd

import (
	"fmt"
	"io"
	"sync"
)

// streamNotifier prints fallback warnings and errors as they happen.
// Agents stream concurrently, so writes are serialized.
type streamNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

func newStreamNotifier(w io.Writer) *streamNotifier {
	return &streamNotifier{w: w}
}

func (n *streamNotifier) Warn(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintf(n.w, "warning: %s\n", message)
}

func (n *streamNotifier) Error(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintf(n.w, "error: %s\n", message)
}
