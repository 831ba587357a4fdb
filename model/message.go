package model

import (
	"sort"
	"strings"
	"time"
)

// ContentTypeHeader is the exact header name looked up in a part's header block.
const ContentTypeHeader = "Content-Type"

// ContentIDHeader names the header used to address parts of a multipart/related message.
const ContentIDHeader = "Content-Id"

// ContentType is a parsed Content-Type header value. Attribute names keep the case
// they were written with.
type ContentType struct {
	MediaType    string
	MediaSubType string
	Attributes   map[string]string
}

// Attr returns the named attribute and whether it was present.
func (c ContentType) Attr(name string) (string, bool) {
	v, ok := c.Attributes[name]
	return v, ok
}

// Boundary returns the "boundary" attribute.
func (c ContentType) Boundary() (string, bool) {
	return c.Attr("boundary")
}

// Type returns "mediaType/mediaSubType".
func (c ContentType) Type() string {
	return c.MediaType + "/" + c.MediaSubType
}

// String renders the content type for diagnostics. Every attribute value is
// double-quoted regardless of how it was written and keys are sorted.
func (c ContentType) String() string {
	var sb strings.Builder
	sb.WriteString(c.Type())

	keys := make([]string, 0, len(c.Attributes))
	for k := range c.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		sb.WriteString("; ")
		sb.WriteString(k)
		sb.WriteString(`="`)
		sb.WriteString(strings.ReplaceAll(c.Attributes[k], `"`, `\"`))
		sb.WriteByte('"')
	}
	return sb.String()
}

// Message is a single part of a multipart body.
type Message struct {
	// Headers maps header names, as written, to their trimmed values.
	Headers map[string]string
	// Body is the raw text between the header block and the next boundary.
	Body string
	// ContentType is nil when the part carries no Content-Type header.
	ContentType *ContentType
}

// Header returns the value of the header with exactly the given name.
func (m Message) Header(name string) (string, bool) {
	v, ok := m.Headers[name]
	return v, ok
}

// ContentID returns the Content-Id header value, or an empty string. Unlike
// Content-Type the name is matched case-insensitively, senders write both
// Content-Id and Content-ID.
func (m Message) ContentID() string {
	if v, ok := m.Headers[ContentIDHeader]; ok {
		return v
	}
	for k, v := range m.Headers {
		if strings.EqualFold(k, ContentIDHeader) {
			return v
		}
	}
	return ""
}

// HeaderNames returns the header names in sorted order.
func (m Message) HeaderNames() []string {
	names := make([]string, 0, len(m.Headers))
	for k := range m.Headers {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Mail represents a single multipart/related message extracted from an mbox archive.
type Mail struct {
	ID          string
	Hash        string
	ReceivedAt  time.Time
	Size        int64
	ContentType ContentType
	// Parts holds every part of the message in source order.
	Parts []Message
	// Kept lists the positions in Parts that passed the part filter. Nil keeps
	// every part.
	Kept []int
}

// Selected returns the positions of the parts to extract.
func (m Mail) Selected() []int {
	if m.Kept != nil {
		return m.Kept
	}
	all := make([]int, len(m.Parts))
	for i := range all {
		all[i] = i
	}
	return all
}

// Envelope wraps a mail alongside an optional error encountered while decoding.
// Skipped holds the reason a message was passed over, for example its media type.
type Envelope struct {
	Mail    Mail
	Err     error
	Skipped string
}
