package docqa

import (
	"errors"
	"fmt"
)

var (
	// ErrExtraction is returned when source text could not be obtained.
	ErrExtraction = errors.New("docqa: text extraction failed")

	// ErrEmbedding is returned when the embedding backend fails.
	ErrEmbedding = errors.New("docqa: embedding failed")

	// ErrGeneration is returned when the answer backend fails.
	ErrGeneration = errors.New("docqa: answer generation failed")

	// ErrStore is returned when a persistence read or write fails.
	ErrStore = errors.New("docqa: store operation failed")

	// ErrValidation is returned for empty or missing input.
	ErrValidation = errors.New("docqa: invalid input")

	// ErrDocumentNotFound is returned when a document ID does not exist.
	ErrDocumentNotFound = errors.New("docqa: document not found")

	// ErrUnsupportedFormat is returned for unrecognized file formats.
	ErrUnsupportedFormat = errors.New("docqa: unsupported document format")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("docqa: invalid configuration")
)

// Error is a classified pipeline failure. Kind is one of the sentinel
// errors above; Err is the underlying cause.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func fail(kind error, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the taxonomy sentinel carried by err, or nil.
func KindOf(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	for _, k := range []error{ErrValidation, ErrExtraction, ErrEmbedding, ErrGeneration, ErrStore} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
