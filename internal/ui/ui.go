// Package ui renders terminal output for the tn command.
package ui

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/tasknest/tasknest/internal/task"
)

var (
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	titleStyle  = lipgloss.NewStyle().Bold(true)
)

// plain reports whether the terminal cannot render color.
func plain() bool {
	return termenv.NewOutput(os.Stdout).ColorProfile() == termenv.Ascii
}

// RenderAccent renders s in the accent color.
func RenderAccent(s string) string {
	if plain() {
		return s
	}
	return accentStyle.Render(s)
}

// RenderPass renders s as a success indicator.
func RenderPass(s string) string {
	if plain() {
		return s
	}
	return passStyle.Render(s)
}

// RenderWarn renders s as a warning.
func RenderWarn(s string) string {
	if plain() {
		return s
	}
	return warnStyle.Render(s)
}

// RenderFail renders s as an error.
func RenderFail(s string) string {
	if plain() {
		return s
	}
	return failStyle.Render(s)
}

// RenderDim renders s de-emphasized.
func RenderDim(s string) string {
	if plain() {
		return s
	}
	return dimStyle.Render(s)
}

// RenderTitle renders s as a heading.
func RenderTitle(s string) string {
	if plain() {
		return s
	}
	return titleStyle.Render(s)
}

// Checkbox renders a completion marker.
func Checkbox(done bool) string {
	if done {
		return RenderPass("[x]")
	}
	return "[ ]"
}

// PriorityBadge renders a task priority with its conventional color.
func PriorityBadge(p task.Priority) string {
	switch p {
	case task.PriorityHigh:
		return RenderFail(string(p))
	case task.PriorityMedium:
		return RenderWarn(string(p))
	default:
		return RenderDim(string(p))
	}
}

// TaskLine renders one task for list output.
func TaskLine(t *task.Task) string {
	line := fmt.Sprintf("%s %s  %s", Checkbox(t.Completed), PriorityBadge(t.Priority), t.Title)
	if t.Place != "" {
		line += " " + RenderDim("@"+t.Place)
	}
	return line
}
