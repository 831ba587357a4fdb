package mbox

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcgn/multipart-related/grammar"
	"github.com/dhcgn/multipart-related/model"
)

//go:embed test_data/related.mbox
var relatedMboxData []byte

func useArchive(t *testing.T, data []byte) {
	t.Helper()
	prev := openArchive
	openArchive = func(string) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	t.Cleanup(func() { openArchive = prev })
}

func streamAll(t *testing.T, opts Options) []model.Envelope {
	t.Helper()
	reader, err := NewReader(opts, nil)
	require.NoError(t, err)

	out := make(chan model.Envelope, 16)
	done := make(chan error, 1)
	go func() {
		done <- reader.Stream(context.Background(), out)
		close(out)
	}()

	var envs []model.Envelope
	for env := range out {
		envs = append(envs, env)
	}
	require.NoError(t, <-done)
	return envs
}

func TestStream(t *testing.T) {
	useArchive(t, relatedMboxData)

	envs := streamAll(t, Options{Path: "test_data/related.mbox", CRLF: true})
	require.Len(t, envs, 5)

	soap := envs[0]
	require.NoError(t, soap.Err)
	assert.Equal(t, "soap-1@example.com", soap.Mail.ID)
	assert.Equal(t, time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC), soap.Mail.ReceivedAt.UTC())
	boundary, ok := soap.Mail.ContentType.Boundary()
	require.True(t, ok)
	assert.Equal(t, "uuid:c73c9ce8", boundary)
	require.Len(t, soap.Mail.Parts, 2)
	assert.Equal(t, "application/xop+xml", soap.Mail.Parts[0].ContentType.Type())
	assert.Equal(t, "text/xml", soap.Mail.Parts[0].ContentType.Attributes["type"])
	assert.Equal(t, "iVBORw0KGgo=", soap.Mail.Parts[1].Body)

	plain := envs[1]
	assert.NoError(t, plain.Err)
	assert.Equal(t, "text/plain", plain.Skipped)
	assert.Empty(t, plain.Mail.Parts)

	folded := envs[2]
	require.NoError(t, folded.Err)
	assert.Equal(t, folded.Mail.Hash, folded.Mail.ID, "missing Message-Id falls back to the hash")
	require.Len(t, folded.Mail.Parts, 2)
	assert.Equal(t, "<logo>", folded.Mail.Parts[1].ContentID())
	assert.Equal(t, "R0lGODlhAQABAAAAACw=", folded.Mail.Parts[1].Body)

	broken := envs[3]
	assert.ErrorIs(t, broken.Err, grammar.ErrSyntax)
	assert.Equal(t, "broken-1@example.com", broken.Mail.ID)

	assert.Equal(t, soap.Mail.Hash, envs[4].Mail.Hash)
}

func TestStream_OpenError(t *testing.T) {
	boom := errors.New("boom")
	prev := openArchive
	openArchive = func(string) (io.ReadCloser, error) { return nil, boom }
	defer func() { openArchive = prev }()

	reader, err := NewReader(Options{Path: "missing.mbox"}, nil)
	require.NoError(t, err)
	err = reader.Stream(context.Background(), make(chan model.Envelope, 1))
	assert.ErrorIs(t, err, boom)
}

func TestStream_Cancelled(t *testing.T) {
	useArchive(t, relatedMboxData)

	reader, err := NewReader(Options{Path: "test_data/related.mbox"}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = reader.Stream(ctx, make(chan model.Envelope))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewReader_EmptyPath(t *testing.T) {
	_, err := NewReader(Options{Path: "  "}, nil)
	assert.Error(t, err)
}

func TestRead(t *testing.T) {
	useArchive(t, relatedMboxData)

	var types []string
	err := Read("test_data/related.mbox", func(m *MboxMessage) error {
		types = append(types, MediaType(HeaderValue(m.Header, "Content-Type")))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"multipart/related", "text/plain", "Multipart/Related", "multipart/related", "multipart/related"}, types)
}

func TestRead_CallbackError(t *testing.T) {
	useArchive(t, relatedMboxData)

	stop := errors.New("stop")
	calls := 0
	err := Read("test_data/related.mbox", func(*MboxMessage) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestCountMessages(t *testing.T) {
	useArchive(t, relatedMboxData)

	n, err := CountMessages("test_data/related.mbox")
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestHeaderHelpers(t *testing.T) {
	assert.Equal(t, "multipart/related", MediaType(" multipart/related ; boundary=b"))
	assert.Equal(t, "image/png", MediaType("image/png"))
	assert.Len(t, Hash([]byte("x")), 44)
}
