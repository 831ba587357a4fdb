package mbox

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/mail"
	"os"
	"strings"

	mboxlib "github.com/emersion/go-mbox"
	"github.com/emersion/go-message/textproto"

	"github.com/dhcgn/multipart-related/grammar"
	"github.com/dhcgn/multipart-related/model"
	"github.com/dhcgn/multipart-related/related"
	"github.com/dhcgn/multipart-related/runner"
)

// RelatedType is the media type the reader extracts; everything else is skipped.
const RelatedType = "multipart/related"

// openArchive is replaced in tests.
var openArchive = func(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

type Options struct {
	Path string
	// CRLF rewrites lone LF line endings to CRLF before the body is split.
	// Mail stores usually keep LF while the multipart grammar needs CRLF.
	CRLF bool
}

type Reader interface {
	Stream(ctx context.Context, out chan<- model.Envelope) error
}

func NewReader(opts Options, logger *slog.Logger) (Reader, error) {
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		return nil, fmt.Errorf("mbox path is empty")
	}
	return &fileReader{path: path, crlf: opts.CRLF, logger: logger}, nil
}

type fileReader struct {
	path   string
	crlf   bool
	logger *slog.Logger
}

// Stream emits one envelope per archive message. Per-message failures travel
// inside the envelope; only archive level failures end the stream early.
func (f *fileReader) Stream(ctx context.Context, out chan<- model.Envelope) error {
	file, err := openArchive(f.path)
	if err != nil {
		return fmt.Errorf("open mbox: %w", err)
	}
	defer file.Close()
	reader := mboxlib.NewReader(file)

	for idx := 0; ; idx++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("message %d: %w", idx, err)
		}

		raw, err := io.ReadAll(msgReader)
		if err != nil {
			return fmt.Errorf("message %d read: %w", idx, err)
		}

		env := f.decode(raw)
		if env.Err != nil {
			env.Err = fmt.Errorf("message %d: %w", idx, env.Err)
			if f.logger != nil {
				f.logger.Warn("mbox message rejected", "path", f.path, "index", idx, "id", env.Mail.ID, "err", env.Err)
			}
		} else if env.Skipped != "" && f.logger != nil {
			f.logger.Debug("mbox message skipped", "index", idx, "id", env.Mail.ID, "reason", env.Skipped)
		}

		if err := emit(ctx, out, env); err != nil {
			return err
		}
	}
}

func (f *fileReader) decode(raw []byte) model.Envelope {
	var env model.Envelope
	env.Mail.Hash = Hash(raw)
	env.Mail.ID = env.Mail.Hash
	env.Mail.Size = int64(len(raw))

	br := bufio.NewReader(bytes.NewReader(raw))
	header, err := textproto.ReadHeader(br)
	if err != nil {
		env.Err = fmt.Errorf("read header: %w", err)
		return env
	}

	if id := MessageID(header); id != "" {
		env.Mail.ID = id
	}
	if date := header.Get("Date"); date != "" {
		if t, err := mail.ParseDate(date); err == nil {
			env.Mail.ReceivedAt = t
		}
	}

	contentType := HeaderValue(header, "Content-Type")
	if contentType == "" {
		env.Skipped = "no content type"
		return env
	}
	if mediaType := MediaType(contentType); !strings.EqualFold(mediaType, RelatedType) {
		env.Skipped = strings.ToLower(mediaType)
		return env
	}

	ct, err := grammar.ParseContentType(contentType)
	if err != nil {
		env.Err = fmt.Errorf("content type: %w", err)
		return env
	}
	env.Mail.ContentType = ct

	var body io.Reader = br
	if f.crlf {
		rest, err := io.ReadAll(br)
		if err != nil {
			env.Err = fmt.Errorf("read body: %w", err)
			return env
		}
		body = strings.NewReader(related.ToCRLF(string(rest)))
	}

	parts, err := related.ParseReader(ct, body)
	if err != nil {
		env.Err = fmt.Errorf("parse parts: %w", err)
		return env
	}
	env.Mail.Parts = parts
	return env
}

func emit(ctx context.Context, out chan<- model.Envelope, env model.Envelope) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case out <- env:
		return nil
	}
}

// Hash identifies a raw message across runs.
func Hash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// MessageID returns the Message-Id header without angle brackets.
func MessageID(header textproto.Header) string {
	return strings.Trim(HeaderValue(header, "Message-Id"), " <>")
}

// HeaderValue returns the unfolded, trimmed value of the named header field.
func HeaderValue(header textproto.Header, name string) string {
	v := header.Get(name)
	if strings.ContainsAny(v, "\r\n") {
		v = strings.NewReplacer("\r\n", "", "\n", "", "\r", "").Replace(v)
	}
	return strings.TrimSpace(v)
}

// MediaType returns the "type/subtype" portion of a Content-Type value.
func MediaType(contentType string) string {
	mediaType, _, _ := strings.Cut(contentType, ";")
	return strings.TrimSpace(mediaType)
}

type Producer struct {
	reader Reader
	runner *runner.Runner
}

func NewProducer(opts Options, r *runner.Runner, logger *slog.Logger) (*Producer, error) {
	reader, err := NewReader(opts, logger)
	if err != nil {
		return nil, err
	}
	producer := &Producer{reader: reader, runner: r}
	r.AddStage("mbox", producer.run)
	return producer, nil
}

func (p *Producer) run(ctx context.Context) error {
	defer p.runner.CloseMailbox()
	return p.reader.Stream(ctx, p.runner.MailboxWriter())
}

// MboxMessage represents a single message from an mbox file for stats.
type MboxMessage struct {
	Header textproto.Header
	Body   []byte
	Raw    []byte
}

// Read opens an mbox file and iterates through its messages,
// calling the provided callback for each message. Messages whose header
// cannot be read are passed over.
func Read(path string, callback func(m *MboxMessage) error) error {
	file, err := openArchive(path)
	if err != nil {
		return fmt.Errorf("open mbox: %w", err)
	}
	defer file.Close()
	reader := mboxlib.NewReader(file)

	for {
		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		raw, err := io.ReadAll(msgReader)
		if err != nil {
			continue
		}

		br := bufio.NewReader(bytes.NewReader(raw))
		header, err := textproto.ReadHeader(br)
		if err != nil {
			continue
		}
		body, err := io.ReadAll(br)
		if err != nil {
			continue
		}

		if err := callback(&MboxMessage{Header: header, Body: body, Raw: raw}); err != nil {
			return err
		}
	}
}

// CountMessages counts the total number of messages in an mbox file.
func CountMessages(path string) (int, error) {
	file, err := openArchive(path)
	if err != nil {
		return 0, fmt.Errorf("open mbox: %w", err)
	}
	defer file.Close()
	reader := mboxlib.NewReader(file)

	count := 0
	for {
		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return count, nil
			}
			return 0, err
		}
		// unreadable messages still count
		_, _ = io.Copy(io.Discard, msgReader)
		count++
	}
}

