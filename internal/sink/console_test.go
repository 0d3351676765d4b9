package sink

import (
	"bytes"
	"strings"
	"testing"
)

func TestConsoleBeeper_NotifyTone(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleBeeper(&buf)

	c.NotifyTone(600, true)
	c.NotifyTone(600, false)

	out := buf.String()
	if !strings.Contains(out, "600Hz on") {
		t.Errorf("output = %q, want it to mention the tone turning on", out)
	}
	if !strings.Contains(out, "tone off") {
		t.Errorf("output = %q, want it to mention the tone turning off", out)
	}
}

func TestConsoleBeeper_WriteRequiresOpen(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleBeeper(&buf)

	if _, err := c.Write(make([]int16, 8)); err != ErrSinkClosed {
		t.Fatalf("Write() before Open error = %v, want ErrSinkClosed", err)
	}

	if err := c.Open(""); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	n, err := c.Write(make([]int16, 8))
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if n != 8 {
		t.Errorf("Write() = %d, want 8", n)
	}
}
