package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

type formatter struct {
	w    io.Writer
	ok   lipgloss.Style
	bad  lipgloss.Style
	warn lipgloss.Style
	dim  lipgloss.Style
}

func newFormatter(w io.Writer) *formatter {
	return &formatter{
		w:    w,
		ok:   lipgloss.NewStyle().Foreground(lipgloss.Color("#05ffa1")).Bold(true),
		bad:  lipgloss.NewStyle().Foreground(lipgloss.Color("#ff71ce")).Bold(true),
		warn: lipgloss.NewStyle().Foreground(lipgloss.Color("#ffd166")),
		dim:  lipgloss.NewStyle().Foreground(lipgloss.Color("#9ca3d8")),
	}
}

func (f *formatter) Check(name string, ok bool, detail string) {
	mark := f.ok.Render("✓")
	if !ok {
		mark = f.bad.Render("✗")
	}
	fmt.Fprintf(f.w, "%s %s: %s\n", mark, name, f.dim.Render(detail))
}

func (f *formatter) Warning(msg string) {
	fmt.Fprintln(f.w, f.warn.Render("! "+msg))
}

func (f *formatter) Success(msg string) {
	fmt.Fprintln(f.w, f.ok.Render(msg))
}

func (f *formatter) Line(format string, args ...any) {
	fmt.Fprintf(f.w, format+"\n", args...)
}
