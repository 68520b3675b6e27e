package cmd

import (
	"fmt"

	"github.com/charmbracelet/glamour"
)

// renderMarkdown formats prompt text for reading in a terminal. Prompts are
// markdown, so headings and lists come out styled.
func renderMarkdown(text string, width int) (string, error) {
	if width <= 0 {
		width = 100
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("create markdown renderer: %w", err)
	}
	out, err := r.Render(text)
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return out, nil
}
