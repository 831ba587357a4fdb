// Package extract writes the parts of multipart/related messages to disk, one
// directory per message with a manifest describing the parts.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/textproto"

	"github.com/dhcgn/multipart-related/model"
	"github.com/dhcgn/multipart-related/render"
	"github.com/dhcgn/multipart-related/runner"
	"github.com/dhcgn/multipart-related/state"
	"github.com/dhcgn/multipart-related/stats"
)

// ManifestName is the base name of the manifest file; the format supplies the extension.
const ManifestName = "manifest"

var ErrMissingHash = errors.New("message hash is empty")

var knownExtensions = map[string]string{
	"application/json":    ".json",
	"application/pdf":     ".pdf",
	"application/xml":     ".xml",
	"application/xop+xml": ".xml",
	"image/gif":           ".gif",
	"image/jpeg":          ".jpg",
	"image/png":           ".png",
	"text/html":           ".html",
	"text/plain":          ".txt",
	"text/xml":            ".xml",
}

type Options struct {
	OutputDir string
	DryRun    bool
	Format    render.Format
	// Decode undoes base64 and quoted-printable transfer encodings.
	Decode bool
}

type Extractor struct {
	opts     Options
	runner   *runner.Runner
	tracker  state.Tracker
	extracts <-chan model.Mail
	logger   *slog.Logger
}

func NewExtractor(opts Options, r *runner.Runner, logger *slog.Logger) (*Extractor, error) {
	if opts.OutputDir == "" && !opts.DryRun {
		return nil, fmt.Errorf("output directory is empty")
	}
	if opts.Format == "" {
		opts.Format = render.FormatYAML
	}
	tracker := r.Tracker()
	if tracker == nil {
		return nil, fmt.Errorf("tracker must not be nil")
	}
	e := &Extractor{
		opts:     opts,
		runner:   r,
		tracker:  tracker,
		extracts: r.Extracts(),
		logger:   logger,
	}
	r.AddStage("extract", e.run)
	return e, nil
}

func (e *Extractor) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case mail, ok := <-e.extracts:
			if !ok {
				return nil
			}
			if err := e.handle(mail); err != nil {
				e.runner.EmitEvent(stats.Event{Stage: stats.StageExtract, Type: stats.EventTypeError, MessageID: mail.ID, Err: err})
				return err
			}
		}
	}
}

func (e *Extractor) handle(mail model.Mail) error {
	if mail.Hash == "" {
		return fmt.Errorf("message %s: %w", mail.ID, ErrMissingHash)
	}

	if e.opts.DryRun {
		selected := len(mail.Selected())
		if err := e.tracker.MarkProcessed(mail.Hash, mail.ID, selected); err != nil {
			return err
		}
		e.runner.EmitEvent(stats.Event{Stage: stats.StageExtract, Type: stats.EventTypeDryRunExtract, MessageID: mail.ID, Parts: selected})
		if e.logger != nil {
			e.logger.Debug("dry-run extract", "messageID", mail.ID, "parts", selected, "dir", Dir(e.opts.OutputDir, mail.ID))
		}
		return nil
	}

	written, err := e.Write(mail)
	if err != nil {
		return fmt.Errorf("extract message %s: %w", mail.ID, err)
	}
	if err := e.tracker.MarkProcessed(mail.Hash, mail.ID, written); err != nil {
		return err
	}

	e.runner.EmitEvent(stats.Event{Stage: stats.StageExtract, Type: stats.EventTypeExtracted, MessageID: mail.ID, Parts: written})
	if e.logger != nil {
		e.logger.Debug("extracted message", "messageID", mail.ID, "parts", written, "hash", mail.Hash)
	}
	return nil
}

// Write stores the selected parts of mail and its manifest and returns the
// number of part files written. Files are named after the position of the part
// in the source message.
func (e *Extractor) Write(mail model.Mail) (int, error) {
	dir := Dir(e.opts.OutputDir, mail.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create message directory: %w", err)
	}

	selected := mail.Selected()
	doc := render.SelectDocument(mail.ContentType, mail.Parts, selected, false)
	doc.ID = mail.ID
	doc.Hash = mail.Hash
	if !mail.ReceivedAt.IsZero() {
		doc.ReceivedAt = mail.ReceivedAt.Format(time.RFC3339)
	}

	for n, pos := range selected {
		p := mail.Parts[pos]
		data := []byte(p.Body)
		if e.opts.Decode {
			decoded, err := DecodeBody(p)
			if err != nil {
				if e.logger != nil {
					e.logger.Warn("keeping encoded part body", "messageID", mail.ID, "part", pos, "err", err)
				}
			} else {
				data = decoded
			}
		}

		name := fmt.Sprintf("part-%03d%s", pos, Extension(p))
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return n, fmt.Errorf("write part %d: %w", pos, err)
		}
		doc.Parts[n].File = name
	}

	manifest, err := os.Create(filepath.Join(dir, ManifestName+e.opts.Format.Ext()))
	if err != nil {
		return len(selected), fmt.Errorf("create manifest: %w", err)
	}
	if err := render.Write(manifest, doc, e.opts.Format); err != nil {
		manifest.Close()
		return len(selected), fmt.Errorf("write manifest: %w", err)
	}
	if err := manifest.Close(); err != nil {
		return len(selected), fmt.Errorf("close manifest: %w", err)
	}
	return len(selected), nil
}

// Dir returns the directory a message is extracted into.
func Dir(outputDir, id string) string {
	return filepath.Join(outputDir, SanitizeID(id))
}

// SanitizeID maps a message id onto a safe single path element.
func SanitizeID(id string) string {
	var sb strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == '.' || r == '-' || r == '_' || r == '@' || r == '+':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	name := strings.Trim(sb.String(), ".")
	if len(name) > 120 {
		name = name[:120]
	}
	if name == "" {
		return "message"
	}
	return name
}

// Extension picks a file extension for a part from its media type.
func Extension(p model.Message) string {
	if p.ContentType == nil {
		return ".bin"
	}
	mediaType := strings.ToLower(p.ContentType.Type())
	if ext, ok := knownExtensions[mediaType]; ok {
		return ext
	}
	if strings.HasSuffix(mediaType, "+xml") {
		return ".xml"
	}
	if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

// DecodeBody undoes the part's Content-Transfer-Encoding. Parts without one,
// or with 7bit, 8bit or binary, come back unchanged.
func DecodeBody(p model.Message) ([]byte, error) {
	encoding := transferEncoding(p)
	if encoding == "" {
		return []byte(p.Body), nil
	}

	var header textproto.Header
	header.Set("Content-Transfer-Encoding", encoding)
	entity, err := message.New(message.Header{Header: header}, strings.NewReader(p.Body))
	if err != nil {
		return nil, fmt.Errorf("content transfer encoding %q: %w", encoding, err)
	}
	data, err := io.ReadAll(entity.Body)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", encoding, err)
	}
	return data, nil
}

func transferEncoding(p model.Message) string {
	for name, value := range p.Headers {
		if strings.EqualFold(name, "Content-Transfer-Encoding") {
			return strings.ToLower(strings.TrimSpace(value))
		}
	}
	return ""
}
