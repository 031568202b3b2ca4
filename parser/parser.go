package parser

import (
	"context"
	"errors"
)

// ErrNoText is returned when a document yields no extractable text at all.
var ErrNoText = errors.New("parser: no extractable text")

// ParseResult is what a parser produces from a document file.
type ParseResult struct {
	Text     string // Plain text of the whole document, in reading order
	Pages    int    // Pages or sheets visited; 0 when the format has none
	Method   string // "native"
	Metadata map[string]string
}

// Parser can parse a specific document format.
type Parser interface {
	Parse(ctx context.Context, path string) (*ParseResult, error)
	SupportedFormats() []string
}
