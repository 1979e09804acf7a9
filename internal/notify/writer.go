package notify

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var kindStyles = map[Kind]lipgloss.Style{
	KindDefault: lipgloss.NewStyle().Bold(true),
	KindSuccess: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2")),
	KindError:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1")),
	KindWarning: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3")),
	KindInfo:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4")),
}

// WriterSink prints one line per notification, e.g.
//
//	[success] Comisiones: Registro agregado: Agricultura
type WriterSink struct {
	mu     sync.Mutex
	w      io.Writer
	styled bool
}

// NewWriterSink creates a sink writing to w. When styled is true the kind tag
// is colored for terminals.
func NewWriterSink(w io.Writer, styled bool) *WriterSink {
	return &WriterSink{w: w, styled: styled}
}

// Notify writes n.
func (s *WriterSink) Notify(n Notification) error {
	kind := n.Kind
	if kind == "" {
		kind = KindDefault
	}
	tag := "[" + string(kind) + "]"
	if s.styled {
		tag = kindStyles[kind].Render(tag)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if n.Title != "" {
		_, err = fmt.Fprintf(s.w, "%s %s: %s\n", tag, n.Title, n.Message)
	} else {
		_, err = fmt.Fprintf(s.w, "%s %s\n", tag, n.Message)
	}
	return err
}
