package parser

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

type XLSXParser struct{}

func (p *XLSXParser) SupportedFormats() []string { return []string{"xlsx"} }

// Parse renders every sheet as pipe-delimited rows under a "Sheet: name."
// line, so each row ends up in its own sentence for the chunker.
func (p *XLSXParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening XLSX: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	sheets := 0

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		if len(rows) == 0 {
			continue
		}

		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("Sheet: " + sheet + ".\n")
		for _, row := range rows {
			b.WriteString("| " + strings.Join(row, " | ") + " |.\n")
		}
		sheets++
	}

	if sheets == 0 {
		return nil, fmt.Errorf("%w: no data found in XLSX", ErrNoText)
	}

	return &ParseResult{
		Text:   b.String(),
		Pages:  sheets,
		Method: "native",
	}, nil
}
