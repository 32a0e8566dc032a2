// Package ui renders styled CLI output.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var (
	ColorAccent = lipgloss.Color("#2CD7C7")
	ColorPass   = lipgloss.Color("#8BC34A")
	ColorWarn   = lipgloss.Color("#F4D03F")
	ColorFail   = lipgloss.Color("#E74C3C")
	ColorMuted  = lipgloss.Color("#6C7A89")
)

var (
	accentStyle = lipgloss.NewStyle().Foreground(ColorAccent).Bold(true)
	passStyle   = lipgloss.NewStyle().Foreground(ColorPass)
	warnStyle   = lipgloss.NewStyle().Foreground(ColorWarn)
	failStyle   = lipgloss.NewStyle().Foreground(ColorFail).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)
	keyStyle    = lipgloss.NewStyle().Bold(true)
)

func RenderAccent(s string) string { return accentStyle.Render(s) }
func RenderPass(s string) string   { return passStyle.Render(s) }
func RenderWarn(s string) string   { return warnStyle.Render(s) }
func RenderFail(s string) string   { return failStyle.Render(s) }
func RenderMuted(s string) string  { return mutedStyle.Render(s) }

// DisableColor makes every renderer return plain text.
func DisableColor() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

// Field is one line of a key/value table.
type Field struct {
	Key   string
	Value any
}

// RenderFields renders fields as an aligned table, one per line, indented
// by three spaces.
func RenderFields(fields ...Field) string {
	width := 0
	for _, f := range fields {
		width = max(width, len(f.Key))
	}
	var b strings.Builder
	for _, f := range fields {
		key := keyStyle.Render(f.Key + ":")
		fmt.Fprintf(&b, "   %s%s %v\n", key, strings.Repeat(" ", width-len(f.Key)), f.Value)
	}
	return b.String()
}

// FormatSize renders a byte count the way status output shows file sizes.
func FormatSize(size int64) string {
	switch {
	case size > 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(size)/(1024*1024))
	case size > 1024:
		return fmt.Sprintf("%.1f KB", float64(size)/1024)
	}
	return fmt.Sprintf("%d bytes", size)
}
