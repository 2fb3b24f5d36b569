package processor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// TextTranslator translates plain-text documents line by line, keeping
// the line structure intact.
type TextTranslator struct {
	lines *LineTranslator
}

// NewTextTranslator creates a text translator
func NewTextTranslator(lines *LineTranslator) (*TextTranslator, error) {
	if lines == nil {
		return nil, fmt.Errorf("line translator is required")
	}
	return &TextTranslator{lines: lines}, nil
}

// Translate translates every line of text. Blank lines and the trailing
// newline, if any, are preserved.
func (t *TextTranslator) Translate(ctx context.Context, text string) (string, error) {
	if text == "" {
		return "", nil
	}
	trailing := strings.HasSuffix(text, "\n")
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}

	out, err := t.lines.TranslateLines(ctx, lines)
	if err != nil {
		return "", err
	}
	result := strings.Join(out, "\n")
	if trailing {
		result += "\n"
	}
	return result, nil
}

// TranslateStream reads all of r, translates it and writes the result to w.
func (t *TextTranslator) TranslateStream(ctx context.Context, r io.Reader, w io.Writer) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read text: %w", err)
	}
	out, err := t.Translate(ctx, string(data))
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(out); err != nil {
		return fmt.Errorf("failed to write translation: %w", err)
	}
	return bw.Flush()
}
