package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/woxQAQ/wasm-passing-data/internal/exchange"
)

var (
	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA"))

	successStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#90EE90"))
)

func line(label string, value any) string {
	return labelStyle.Render(label+":") + " " + valueStyle.Render(fmt.Sprint(value))
}

// quote shows the payload as Go would print it, so a trailing NUL is visible.
func quote(p []byte) string {
	return strconv.Quote(string(p))
}

func renderOriginal(payload []byte) string {
	return line("The original string is", quote(payload))
}

func renderResult(res *exchange.Result) string {
	var b strings.Builder
	b.WriteString(line("Wasm buffer offset", res.Offset) + "\n")
	b.WriteString(line("Original length", len(res.Original)) + "\n")
	b.WriteString(line("New length", res.NewLength) + "\n")
	b.WriteString(line("The new string is", quote(res.Final)) + "\n")
	b.WriteString(successStyle.Render("Success!"))
	return b.String()
}
