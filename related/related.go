// Package related parses multipart/related messages: the outer Content-Type
// header supplies the boundary, the body is split into parts and every part's
// own Content-Type is parsed.
package related

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/text/encoding/unicode"

	"github.com/dhcgn/multipart-related/grammar"
	"github.com/dhcgn/multipart-related/model"
)

var (
	// ErrMissingBoundary is returned when a well-formed Content-Type has no boundary attribute.
	ErrMissingBoundary = errors.New("content type has no boundary attribute")
	// ErrNotMultipart is returned by ParseNested for parts that are not multipart.
	ErrNotMultipart = errors.New("part is not multipart")
)

// ParseMessages parses contentTypeRaw, splits body on its boundary and returns
// the parts in order of appearance. No partial result is returned on error.
func ParseMessages(contentTypeRaw, body string) ([]model.Message, error) {
	ct, err := grammar.ParseContentType(contentTypeRaw)
	if err != nil {
		return nil, err
	}
	boundary, ok := ct.Boundary()
	if !ok {
		return nil, ErrMissingBoundary
	}
	return parseBody(body, boundary)
}

// ParseMessagesReader reads body to the end, decodes it as UTF-8 and parses it
// like ParseMessages. A leading byte order mark is dropped and invalid bytes
// become U+FFFD.
func ParseMessagesReader(contentTypeRaw string, body io.Reader) ([]model.Message, error) {
	ct, err := grammar.ParseContentType(contentTypeRaw)
	if err != nil {
		return nil, err
	}
	return ParseReader(ct, body)
}

// ParseReader is ParseMessagesReader for an already parsed content type.
func ParseReader(ct model.ContentType, body io.Reader) ([]model.Message, error) {
	boundary, ok := ct.Boundary()
	if !ok {
		return nil, ErrMissingBoundary
	}

	text, err := io.ReadAll(unicode.UTF8BOM.NewDecoder().Reader(body))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return parseBody(string(text), boundary)
}

// ParseNested splits the body of a part whose own Content-Type is multipart/*.
func ParseNested(part model.Message) ([]model.Message, error) {
	if part.ContentType == nil || !strings.EqualFold(part.ContentType.MediaType, "multipart") {
		return nil, ErrNotMultipart
	}
	boundary, ok := part.ContentType.Boundary()
	if !ok {
		return nil, ErrMissingBoundary
	}
	return parseBody(part.Body, boundary)
}

func parseBody(body, boundary string) ([]model.Message, error) {
	parts, err := grammar.ParseParts(body, boundary)
	if err != nil {
		return nil, err
	}

	for i := range parts {
		raw, ok := parts[i].Headers[model.ContentTypeHeader]
		if !ok {
			continue
		}
		ct, err := grammar.ParseContentType(raw)
		if err != nil {
			return nil, err
		}
		parts[i].ContentType = &ct
	}
	return parts, nil
}

// Root returns the root part of a multipart/related message: the part whose
// Content-Id matches the "start" attribute, or the first part when there is no
// start attribute.
func Root(ct model.ContentType, parts []model.Message) (model.Message, bool) {
	return at(parts, RootIndex(ct, parts))
}

// RootIndex is Root returning the position of the part, or -1.
func RootIndex(ct model.ContentType, parts []model.Message) int {
	if start, ok := ct.Attr("start"); ok {
		return IndexByContentID(parts, start)
	}
	if len(parts) == 0 {
		return -1
	}
	return 0
}

// ByContentID finds the part addressed by ref, which may be a bare Content-Id,
// an angle-bracketed one or a "cid:" URL.
func ByContentID(parts []model.Message, ref string) (model.Message, bool) {
	return at(parts, IndexByContentID(parts, ref))
}

// IndexByContentID is ByContentID returning the position of the part, or -1.
func IndexByContentID(parts []model.Message, ref string) int {
	want := normalizeContentID(ref)
	if want == "" {
		return -1
	}
	for i, p := range parts {
		if normalizeContentID(p.ContentID()) == want {
			return i
		}
	}
	return -1
}

func at(parts []model.Message, i int) (model.Message, bool) {
	if i < 0 {
		return model.Message{}, false
	}
	return parts[i], true
}

func normalizeContentID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) >= 4 && strings.EqualFold(id[:4], "cid:") {
		id = id[4:]
		if unescaped, err := url.PathUnescape(id); err == nil {
			id = unescaped
		}
	}
	return strings.TrimSuffix(strings.TrimPrefix(id, "<"), ">")
}

// ToCRLF turns every LF that is not already preceded by CR into CRLF.
func ToCRLF(s string) string {
	if !strings.Contains(s, "\n") {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s) + strings.Count(s, "\n"))
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' && (i == 0 || s[i-1] != '\r') {
			sb.WriteByte('\r')
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}
