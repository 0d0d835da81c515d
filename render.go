package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"fireshot/pkg/conversation"
	"fireshot/pkg/ocr"

	"github.com/charmbracelet/glamour"
)

// renderer prints markdown to a terminal.
type renderer struct {
	mu sync.Mutex
	tr *glamour.TermRenderer
	w  io.Writer
}

func newRenderer(w io.Writer) (*renderer, error) {
	tr, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		return nil, err
	}
	return &renderer{tr: tr, w: w}, nil
}

func (r *renderer) markdown(md string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out, err := r.tr.Render(md)
	if err != nil {
		out = md
	}
	fmt.Fprint(r.w, out)
}

func (r *renderer) replies(title string, replies []conversation.Reply) {
	r.markdown(repliesMarkdown(title, replies))
}

// repliesMarkdown lays out bot replies, keyboards as lists of choices.
func repliesMarkdown(title string, replies []conversation.Reply) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", title)
	if len(replies) == 0 {
		b.WriteString("_no reply_\n")
	}
	for _, rp := range replies {
		b.WriteString(rp.Text)
		b.WriteString("\n\n")
		for _, row := range rp.Keyboard {
			for _, btn := range row {
				fmt.Fprintf(&b, "- %s `%s`\n", btn.Text, btn.Data)
			}
		}
		if len(rp.Keyboard) > 0 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// balanceReport tabulates the balances found in one screenshot.
func balanceReport(name, hash string, balances []ocr.Balance) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\nhash `%s`\n\n", name, hash)
	if len(balances) == 0 {
		b.WriteString("no balance found\n")
		return b.String()
	}
	b.WriteString("| # | x | y | balance |\n|---|---|---|---|\n")
	for i, bal := range balances {
		fmt.Fprintf(&b, "| %d | %d | %d | %s |\n", i+1, bal.X, bal.Y, bal.Price)
	}
	return b.String()
}
