// Package render turns parsed multipart/related messages into documents for
// people (text) and for tools (json, yaml, toml).
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/dhcgn/multipart-related/model"
	"github.com/dhcgn/multipart-related/related"
)

type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// ParseFormat accepts a format name case-insensitively; "yml" is an alias for yaml.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatText, FormatJSON, FormatYAML, FormatTOML:
		return f, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown format %q (want text, json, yaml or toml)", s)
	}
}

// Ext returns the file extension used for manifests in this format.
func (f Format) Ext() string {
	if f == FormatText {
		return ".txt"
	}
	return "." + string(f)
}

type ContentTypeView struct {
	Type       string            `json:"type" yaml:"type" toml:"type"`
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty" toml:"attributes,omitempty"`
	Value      string            `json:"value" yaml:"value" toml:"value"`
}

func NewContentTypeView(ct model.ContentType) ContentTypeView {
	return ContentTypeView{Type: ct.Type(), Attributes: ct.Attributes, Value: ct.String()}
}

type PartView struct {
	Index       int               `json:"index" yaml:"index" toml:"index"`
	Root        bool              `json:"root,omitempty" yaml:"root,omitempty" toml:"root,omitempty"`
	ContentID   string            `json:"content_id,omitempty" yaml:"content_id,omitempty" toml:"content_id,omitempty"`
	ContentType *ContentTypeView  `json:"content_type,omitempty" yaml:"content_type,omitempty" toml:"content_type,omitempty"`
	Headers     map[string]string `json:"headers" yaml:"headers" toml:"headers"`
	Size        int               `json:"size" yaml:"size" toml:"size"`
	File        string            `json:"file,omitempty" yaml:"file,omitempty" toml:"file,omitempty"`
	Body        string            `json:"body,omitempty" yaml:"body,omitempty" toml:"body,omitempty"`
	Parts       []PartView        `json:"parts,omitempty" yaml:"parts,omitempty" toml:"parts,omitempty"`
}

// Document describes one multipart/related message. TotalParts counts every
// part of the message, Parts may list only a selection of them.
type Document struct {
	ID          string          `json:"id,omitempty" yaml:"id,omitempty" toml:"id,omitempty"`
	Hash        string          `json:"hash,omitempty" yaml:"hash,omitempty" toml:"hash,omitempty"`
	ReceivedAt  string          `json:"received_at,omitempty" yaml:"received_at,omitempty" toml:"received_at,omitempty"`
	ContentType ContentTypeView `json:"content_type" yaml:"content_type" toml:"content_type"`
	TotalParts  int             `json:"total_parts" yaml:"total_parts" toml:"total_parts"`
	Parts       []PartView      `json:"parts" yaml:"parts" toml:"parts"`
}

// NewDocument builds the view of parts split from a message with content type
// ct. Bodies are only copied into the document when withBodies is set.
func NewDocument(ct model.ContentType, parts []model.Message, withBodies bool) Document {
	return SelectDocument(ct, parts, nil, withBodies)
}

// SelectDocument is NewDocument listing only the parts at positions. The root
// flag and part indexes still refer to the full part list. Nil positions
// selects every part.
func SelectDocument(ct model.ContentType, parts []model.Message, positions []int, withBodies bool) Document {
	if positions == nil {
		positions = model.Mail{Parts: parts}.Selected()
	}
	doc := Document{
		ContentType: NewContentTypeView(ct),
		TotalParts:  len(parts),
		Parts:       make([]PartView, 0, len(positions)),
	}

	rootIdx := related.RootIndex(ct, parts)
	for _, i := range positions {
		view := NewPartView(i, parts[i], withBodies)
		view.Root = i == rootIdx
		doc.Parts = append(doc.Parts, view)
	}
	return doc
}

// NewPartView describes a single part.
func NewPartView(index int, p model.Message, withBody bool) PartView {
	view := PartView{
		Index:     index,
		ContentID: p.ContentID(),
		Headers:   p.Headers,
		Size:      len(p.Body),
	}
	if view.Headers == nil {
		view.Headers = map[string]string{}
	}
	if p.ContentType != nil {
		ctv := NewContentTypeView(*p.ContentType)
		view.ContentType = &ctv
	}
	if withBody {
		view.Body = p.Body
	}
	return view
}

// Write encodes doc to w in the given format.
func Write(w io.Writer, doc Document, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	case FormatTOML:
		if err := toml.NewEncoder(w).Encode(doc); err != nil {
			return fmt.Errorf("encode toml: %w", err)
		}
		return nil
	case FormatText:
		return writeText(w, doc)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func writeText(w io.Writer, doc Document) error {
	tw := tabwriter.NewWriter(w, 0, 4, 1, ' ', 0)
	if doc.ID != "" {
		fmt.Fprintf(tw, "Message:\t%s\n", doc.ID)
	}
	fmt.Fprintf(tw, "Content-Type:\t%s\n", doc.ContentType.Value)
	if doc.TotalParts > len(doc.Parts) {
		fmt.Fprintf(tw, "Parts:\t%d of %d\n", len(doc.Parts), doc.TotalParts)
	} else {
		fmt.Fprintf(tw, "Parts:\t%d\n", len(doc.Parts))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return writeTextParts(w, doc.Parts, "")
}

func writeTextParts(w io.Writer, parts []PartView, indent string) error {
	for _, p := range parts {
		kind := "(no content type)"
		if p.ContentType != nil {
			kind = p.ContentType.Value
		}
		marker := ""
		if p.Root {
			marker = " [root]"
		}
		fmt.Fprintf(w, "\n%s#%d %s%s\n", indent, p.Index, kind, marker)

		tw := tabwriter.NewWriter(w, 0, 4, 1, ' ', 0)
		for _, name := range (model.Message{Headers: p.Headers}).HeaderNames() {
			fmt.Fprintf(tw, "%s  %s:\t%s\n", indent, name, p.Headers[name])
		}
		fmt.Fprintf(tw, "%s  size:\t%d bytes\n", indent, p.Size)
		if p.File != "" {
			fmt.Fprintf(tw, "%s  file:\t%s\n", indent, p.File)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		if p.Body != "" {
			fmt.Fprintf(w, "%s  ---\n", indent)
			for _, line := range strings.Split(strings.ReplaceAll(p.Body, "\r\n", "\n"), "\n") {
				fmt.Fprintf(w, "%s  %s\n", indent, line)
			}
		}
		if len(p.Parts) > 0 {
			if err := writeTextParts(w, p.Parts, indent+"    "); err != nil {
				return err
			}
		}
	}
	return nil
}
