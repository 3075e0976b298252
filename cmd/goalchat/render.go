package main

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// renderer formats assistant markdown for the terminal.
type renderer struct {
	term *glamour.TermRenderer
}

func newRenderer(plain bool) *renderer {
	if plain {
		return &renderer{}
	}
	term, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return &renderer{}
	}
	return &renderer{term: term}
}

func (r *renderer) Render(markdown string) string {
	if r.term == nil {
		return strings.TrimRight(markdown, "\n") + "\n"
	}
	out, err := r.term.Render(markdown)
	if err != nil {
		return strings.TrimRight(markdown, "\n") + "\n"
	}
	return out
}
