package app

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Notifier prints transient notices to the terminal
type Notifier struct {
	mu    sync.Mutex
	out   io.Writer
	style lipgloss.Style
}

// NewNotifier creates a notifier writing errors to out in style
func NewNotifier(out io.Writer, style lipgloss.Style) *Notifier {
	return &Notifier{out: out, style: style}
}

// Error shows an error notice
func (n *Notifier) Error(text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintln(n.out, n.style.Render("✗ "+text))
}
