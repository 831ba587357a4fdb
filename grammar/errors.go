package grammar

import (
	"errors"
	"fmt"
)

var (
	// ErrSyntax is matched by every *SyntaxError through errors.Is.
	ErrSyntax = errors.New("syntax error")
	// ErrDuplicateAttribute reports a Content-Type attribute named twice.
	ErrDuplicateAttribute = errors.New("duplicate content type attribute")
	// ErrDuplicateHeader reports a header named twice within one part.
	ErrDuplicateHeader = errors.New("duplicate part header")
)

// SyntaxError describes the position at which the input stopped matching the grammar.
type SyntaxError struct {
	Offset   int
	Expected string
	Near     string
}

func (e *SyntaxError) Error() string {
	if e.Near == "" {
		return fmt.Sprintf("syntax error at offset %d: expected %s, got end of input", e.Offset, e.Expected)
	}
	return fmt.Sprintf("syntax error at offset %d: expected %s, got %q", e.Offset, e.Expected, e.Near)
}

func (e *SyntaxError) Is(target error) bool {
	return target == ErrSyntax
}
