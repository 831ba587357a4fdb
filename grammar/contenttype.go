package grammar

import (
	"fmt"

	"github.com/dhcgn/multipart-related/model"
)

type attribute struct {
	name  string
	value string
}

// ParseContentType parses a Content-Type header value. The whole input must
// match; names and values keep their case.
func ParseContentType(s string) (model.ContentType, error) {
	sc := newScanner(s)

	typ, sub, err := sc.mediaType()
	if err != nil {
		return model.ContentType{}, err
	}

	var attrs []attribute
	for sc.present(";") {
		a, err := sc.attribute()
		if err != nil {
			return model.ContentType{}, err
		}
		attrs = append(attrs, a)
	}
	if !sc.atEnd() {
		return model.ContentType{}, sc.fail(`";" or end of input`)
	}

	m, err := buildAttributes(attrs)
	if err != nil {
		return model.ContentType{}, err
	}

	return model.ContentType{MediaType: typ, MediaSubType: sub, Attributes: m}, nil
}

// ParseMediaType parses s as exactly "type/subtype".
func ParseMediaType(s string) (mediaType, subType string, err error) {
	sc := newScanner(s)
	mediaType, subType, err = sc.mediaType()
	if err != nil {
		return "", "", err
	}
	if err := sc.requireEnd(); err != nil {
		return "", "", err
	}
	return mediaType, subType, nil
}

func (s *scanner) mediaType() (string, string, error) {
	typ, err := s.token()
	if err != nil {
		return "", "", err
	}
	if !s.present("/") {
		return "", "", s.fail(`"/"`)
	}
	sub, err := s.token()
	if err != nil {
		return "", "", err
	}
	return typ, sub, nil
}

// attribute reads one name=value pair; the leading ";" is already consumed.
func (s *scanner) attribute() (attribute, error) {
	s.skipSpace()
	name, err := s.token()
	if err != nil {
		return attribute{}, err
	}
	s.skipSpace()
	if !s.present("=") {
		return attribute{}, s.fail(`"="`)
	}
	s.skipSpace()
	value, err := s.tokenOrQuoted()
	if err != nil {
		return attribute{}, err
	}
	s.skipSpace()
	return attribute{name: name, value: value}, nil
}

func buildAttributes(attrs []attribute) (map[string]string, error) {
	m := make(map[string]string, len(attrs))
	for _, a := range attrs {
		if _, exists := m[a.name]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateAttribute, a.name)
		}
		m[a.name] = a.value
	}
	return m, nil
}
