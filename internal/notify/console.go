// Package notify renders download notifications on a terminal.
package notify

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"github.com/apkdock/apkdock/internal/download"
)

const barWidth = 30

type entry struct {
	n     download.Notification
	timer *time.Timer
}

// Console is a download.Notifier that prints notifications as styled lines
type Console struct {
	out       io.Writer
	permitted bool
	bar       progress.Model

	mu     sync.Mutex
	active map[int32]*entry
}

var _ download.Notifier = (*Console)(nil)

// NewConsole writes to out; posting is refused when permitted is false
func NewConsole(out io.Writer, permitted bool) *Console {
	return &Console{
		out:       out,
		permitted: permitted,
		bar:       progress.New(progress.WithGradient(progressStart, progressEnd), progress.WithWidth(barWidth)),
		active:    make(map[int32]*entry),
	}
}

func (c *Console) Permitted() bool {
	return c.permitted
}

func (c *Console) Notify(id int32, n download.Notification) error {
	if !c.permitted {
		return fmt.Errorf("notifications are disabled")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.active[id]
	if !ok {
		e = &entry{}
		c.active[id] = e
	}
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.n = n
	if n.Timeout > 0 {
		e.timer = time.AfterFunc(n.Timeout, func() { c.dismiss(id, e) })
	}

	_, err := fmt.Fprintln(c.out, c.Render(n))
	return err
}

func (c *Console) Cancel(id int32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.active[id]; ok {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(c.active, id)
	}
	return nil
}

// dismiss drops an entry whose timeout elapsed, unless it was replaced since
func (c *Console) dismiss(id int32, e *entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.active[id]; ok && cur == e {
		delete(c.active, id)
	}
}

// Active returns the ids of notifications still shown, sorted
func (c *Console) Active() []int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]int32, 0, len(c.active))
	for id := range c.active {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Render formats a notification as a single line
func (c *Console) Render(n download.Notification) string {
	icon, color := "✔", colorFinished
	switch {
	case n.Ongoing && n.Indeterminate:
		icon, color = "⋯", colorPending
	case n.Ongoing:
		icon, color = "⬇", colorOngoing
	}

	parts := []string{
		lipgloss.NewStyle().Foreground(color).Render(icon),
		lipgloss.NewStyle().Foreground(colorTitle).Bold(true).Render(n.Title),
	}
	if n.Ongoing && !n.Indeterminate && n.ProgressMax > 0 {
		parts = append(parts, c.bar.ViewAs(float64(n.Progress)/float64(n.ProgressMax)))
	}
	if n.Text != "" {
		parts = append(parts, lipgloss.NewStyle().Foreground(colorText).Render(n.Text))
	}
	for _, a := range n.Actions {
		parts = append(parts, lipgloss.NewStyle().Foreground(colorAction).Render("["+a.Label+"]"))
	}
	if n.Timeout > 0 {
		parts = append(parts, lipgloss.NewStyle().Foreground(colorMuted).Render("("+n.Timeout.String()+")"))
	}
	return strings.Join(parts, " ")
}
