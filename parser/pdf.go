package parser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"
)

type PDFParser struct{}

func (p *PDFParser) SupportedFormats() []string { return []string{"pdf"} }

// Parse extracts the plain text of every page, separated by blank lines.
// Pages that fail to extract are skipped; a PDF with no text at all is an
// error.
func (p *PDFParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	totalPages := reader.NumPage()
	pages := make([]string, 0, totalPages)
	skipped := 0

	for i := 1; i <= totalPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			skipped++
			slog.Debug("parser: skipping unreadable pdf page", "path", path, "page", i, "error", err)
			continue
		}

		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		pages = append(pages, text)
	}

	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: %d pages, %d unreadable", ErrNoText, totalPages, skipped)
	}

	return &ParseResult{
		Text:   strings.Join(pages, "\n\n"),
		Pages:  totalPages,
		Method: "native",
		Metadata: map[string]string{
			"pages_with_text": fmt.Sprintf("%d", len(pages)),
		},
	}, nil
}
