// cmd/dashboard.go
package cmd

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// dashboard renders the receive subcommand's live terminal view when a
// compatible terminal is available: a decoded-text pane, a stats pane,
// and a system/log pane, matching the teacher's tview layout idiom.
type dashboard struct {
	app        *tview.Application
	textView   *tview.TextView
	statsView  *tview.TextView
	systemView *tview.TextView

	textMu      sync.Mutex
	decodedText strings.Builder

	systemLines []string
	systemMu    sync.Mutex

	events  chan dashboardEvent
	closed  atomic.Bool
	ready   chan struct{}
	started time.Time
}

const systemPaneMaxLines = 8

type dashboardEventKind int

const (
	eventCharacter dashboardEventKind = iota
	eventSystemLine
)

type dashboardEvent struct {
	kind dashboardEventKind
	text string
}

// newDashboard constructs and starts a dashboard, or returns nil when
// enable is false so callers can treat it as strictly optional.
func newDashboard(enable bool) *dashboard {
	if !enable {
		return nil
	}

	textPane := tview.NewTextView().SetDynamicColors(true).SetWrap(true)
	textPane.SetTitle("Decoded Text").SetTitleAlign(tview.AlignLeft).SetBorder(true)

	statsPane := tview.NewTextView().SetDynamicColors(true).SetWrap(false)
	statsPane.SetTitle("Stats").SetTitleAlign(tview.AlignLeft).SetBorder(true)
	statsPane.SetTextColor(tcell.ColorYellow)

	systemPane := tview.NewTextView().SetDynamicColors(true).SetWrap(false)
	systemPane.SetTitle("System").SetTitleAlign(tview.AlignLeft).SetBorder(true)

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(textPane, 0, 3, false).
		AddItem(statsPane, 5, 0, false).
		AddItem(systemPane, systemPaneMaxLines+2, 0, false)

	app := tview.NewApplication().SetRoot(layout, true).EnableMouse(false)
	ready := make(chan struct{})
	var once sync.Once
	app.SetBeforeDrawFunc(func(screen tcell.Screen) bool {
		once.Do(func() { close(ready) })
		return false
	})

	d := &dashboard{
		app:        app,
		textView:   textPane,
		statsView:  statsPane,
		systemView: systemPane,
		events:     make(chan dashboardEvent, 256),
		ready:      ready,
		started:    time.Now(),
	}

	go d.runEventLoop()
	go func() {
		if err := app.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "dashboard error: %v\n", err)
		}
	}()

	return d
}

// Stop tears down the dashboard application.
func (d *dashboard) Stop() {
	if d == nil || d.app == nil {
		return
	}
	d.closed.Store(true)
	close(d.events)
	d.app.Stop()
}

// WaitReady blocks until the dashboard has completed its first draw.
func (d *dashboard) WaitReady() {
	if d == nil || d.ready == nil {
		return
	}
	<-d.ready
}

// AppendCharacter queues one decoded character (or a space for a word
// boundary) for display.
func (d *dashboard) AppendCharacter(c string) {
	d.enqueue(dashboardEvent{kind: eventCharacter, text: c})
}

// AppendSystem queues one line of log/diagnostic text.
func (d *dashboard) AppendSystem(line string) {
	d.enqueue(dashboardEvent{kind: eventSystemLine, text: line})
}

func (d *dashboard) enqueue(ev dashboardEvent) {
	if d == nil || d.closed.Load() {
		return
	}
	select {
	case d.events <- ev:
	default:
		// Drop on saturation; the dashboard is a display aid, not a log.
	}
}

// SetReceiveStats renders the receive subcommand's decode statistics.
// decodedCount is formatted with thousands separators and the elapsed
// session time is rendered as a relative duration, exercising
// go-humanize the way the serve subcommand's periodic status log line does.
func (d *dashboard) SetReceiveStats(wpm int, stddevUs float64, decodedCount, errorCount int64) {
	if d == nil {
		return
	}
	lines := []string{
		fmt.Sprintf("speed: %d wpm (stddev %.0fus)", wpm, stddevUs),
		fmt.Sprintf("decoded: %s chars, %d errors", humanize.Comma(decodedCount), errorCount),
		fmt.Sprintf("running: %s", humanize.Time(d.started)),
	}
	d.drawStats(lines)
}

// SetSendStats renders the send subcommand's tone-queue statistics.
func (d *dashboard) SetSendStats(queueLen, queueCap int) {
	if d == nil {
		return
	}
	lines := []string{
		fmt.Sprintf("tone queue: %d/%d", queueLen, queueCap),
		fmt.Sprintf("running: %s", humanize.Time(d.started)),
	}
	d.drawStats(lines)
}

func (d *dashboard) drawStats(lines []string) {
	text := strings.Join(lines, "\n")
	d.app.QueueUpdateDraw(func() {
		d.statsView.SetText(text)
	})
}

func (d *dashboard) runEventLoop() {
	if d == nil {
		return
	}
	for ev := range d.events {
		switch ev.kind {
		case eventCharacter:
			d.appendCharacter(ev.text)
		case eventSystemLine:
			d.appendSystemLine(ev.text)
		}
	}
}

func (d *dashboard) appendCharacter(c string) {
	d.textMu.Lock()
	d.decodedText.WriteString(c)
	text := d.decodedText.String()
	d.textMu.Unlock()

	d.app.QueueUpdateDraw(func() {
		d.textView.SetText(text)
		d.textView.ScrollToEnd()
	})
}

func (d *dashboard) appendSystemLine(line string) {
	tsLine := time.Now().Format("15:04:05 ") + line

	d.systemMu.Lock()
	d.systemLines = append(d.systemLines, tsLine)
	if len(d.systemLines) > systemPaneMaxLines {
		d.systemLines = d.systemLines[len(d.systemLines)-systemPaneMaxLines:]
	}
	text := strings.Join(d.systemLines, "\n")
	d.systemMu.Unlock()

	d.app.QueueUpdateDraw(func() {
		d.systemView.SetText(text)
		d.systemView.ScrollToEnd()
	})
}
