package grammar

import (
	"fmt"
	"strings"

	"github.com/dhcgn/multipart-related/model"
)

const (
	crlf   = "\r\n"
	dashes = "--"
)

type partScanner struct {
	*scanner
	delimiter string
}

// ParseParts splits body on "--" + boundary and returns the parts in order of
// appearance. The ContentType of the returned parts is left nil. A body that
// never reaches the end boundary is a syntax error, even without any part.
func ParseParts(body, boundary string) ([]model.Message, error) {
	ps := &partScanner{scanner: newScanner(body), delimiter: dashes + boundary}

	parts := make([]model.Message, 0)
	for {
		mark := ps.at
		if !ps.boundaryMarker() {
			ps.at = mark
			if len(parts) == 0 {
				return nil, ps.fail(fmt.Sprintf("boundary %q", ps.delimiter))
			}
			return nil, ps.fail(fmt.Sprintf("end boundary %q", ps.delimiter+dashes))
		}

		if ps.present(dashes) {
			ps.takeWhile(isBoundaryTrailer)
			return parts, nil
		}

		part, err := ps.part()
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}
}

// boundaryMarker consumes CRLF* delimiter.
func (s *partScanner) boundaryMarker() bool {
	for s.present(crlf) {
	}
	return s.present(s.delimiter)
}

func (s *partScanner) part() (model.Message, error) {
	// rest of the boundary line
	s.skipSpace()
	s.present(crlf)

	headers, err := s.headerBlock()
	if err != nil {
		return model.Message{}, err
	}

	return model.Message{Headers: headers, Body: s.body()}, nil
}

// headerBlock reads header lines up to and including the blank line. A line
// that is neither a header nor blank is left for the body.
func (s *partScanner) headerBlock() (map[string]string, error) {
	headers := make(map[string]string)
	for !s.atEnd() {
		if s.blankLine() {
			break
		}
		name, value, ok := s.headerLine()
		if !ok {
			break
		}
		if _, exists := headers[name]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateHeader, name)
		}
		headers[name] = value
	}
	return headers, nil
}

func (s *partScanner) blankLine() bool {
	mark := s.at
	s.skipSpace()
	if s.present(crlf) {
		return true
	}
	s.at = mark
	return false
}

func (s *partScanner) headerLine() (name, value string, ok bool) {
	mark := s.at
	s.skipSpace()
	name = s.takeWhile(isTokenChar)
	s.skipSpace()
	if name == "" || !s.present(":") {
		s.at = mark
		return "", "", false
	}

	rest := s.src[s.at:]
	if i := strings.Index(rest, crlf); i >= 0 {
		value = rest[:i]
		s.at += i + len(crlf)
	} else {
		value = rest
		s.at = len(s.src)
	}
	return name, strings.Trim(value, " \t"), true
}

// body returns the text up to the next boundary marker, leaving the cursor on
// the CRLF run that precedes the delimiter.
func (s *partScanner) body() string {
	start := s.at
	i := strings.Index(s.src[start:], s.delimiter)
	if i < 0 {
		s.at = len(s.src)
		return s.src[start:]
	}

	end := start + i
	for end-len(crlf) >= start && s.src[end-len(crlf):end] == crlf {
		end -= len(crlf)
	}
	s.at = end
	return s.src[start:end]
}
