package telegram

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
)

// ParseModeMarkdown and ParseModeHTML are the two parse modes this client
// understands; Telegram also accepts "MarkdownV2" but this runtime never
// emits it directly (see RenderMarkdown).
const (
	ParseModeMarkdown = "Markdown"
	ParseModeHTML     = "HTML"
)

var markdownRenderer = goldmark.New()

// RenderMarkdown converts a handler's Markdown reply into the small subset
// of HTML Telegram's ParseMode=HTML accepts (<b>, <i>, <code>, <pre>, <a>),
// rather than relying on Telegram's own fragile "Markdown" legacy mode. The
// returned string is meant to be sent with parseMode=ParseModeHTML.
func RenderMarkdown(source string) (string, error) {
	var buf bytes.Buffer
	if err := markdownRenderer.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("telegram: render markdown: %w", err)
	}
	return buf.String(), nil
}
