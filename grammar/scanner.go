package grammar

import "strings"

// scanner is a cursor over the input. Parsers save s.at before an attempt and
// put it back when the attempt does not match.
type scanner struct {
	src string
	at  int
}

func newScanner(s string) *scanner {
	return &scanner{src: s}
}

func (s *scanner) atEnd() bool {
	return s.at >= len(s.src)
}

// peek returns the byte at the cursor, or 0 past the end of the input.
func (s *scanner) peek() byte {
	if s.at >= len(s.src) {
		return 0
	}
	return s.src[s.at]
}

// lookingAt reports whether the input at the cursor starts with lit. The
// comparison is exact.
func (s *scanner) lookingAt(lit string) bool {
	return strings.HasPrefix(s.src[s.at:], lit)
}

// present steps past lit if the input at the cursor starts with it.
func (s *scanner) present(lit string) bool {
	if !s.lookingAt(lit) {
		return false
	}
	s.at += len(lit)
	return true
}

// takeWhile returns the maximal run of bytes at the cursor accepted by fn.
func (s *scanner) takeWhile(fn func(byte) bool) string {
	start := s.at
	for s.at < len(s.src) && fn(s.src[s.at]) {
		s.at++
	}
	return s.src[start:s.at]
}

func (s *scanner) skipSpace() {
	s.takeWhile(isHorizontalSpace)
}

// following returns no more than 15 bytes of unparsed input, for error messages.
func (s *scanner) following() string {
	if s.at >= len(s.src) {
		return ""
	}
	f := s.src[s.at:]
	if len(f) > 15 {
		f = f[:15]
	}
	return f
}

func (s *scanner) fail(expected string) error {
	return &SyntaxError{Offset: s.at, Expected: expected, Near: s.following()}
}

func (s *scanner) requireEnd() error {
	if !s.atEnd() {
		return s.fail("end of input")
	}
	return nil
}
