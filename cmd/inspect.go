package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/emersion/go-message/textproto"
	"github.com/spf13/cobra"

	"github.com/dhcgn/multipart-related/grammar"
	"github.com/dhcgn/multipart-related/mbox"
	"github.com/dhcgn/multipart-related/related"
	"github.com/dhcgn/multipart-related/render"
)

type inspectOptions struct {
	contentType string
	body        string
	format      string
	crlf        bool
	nested      bool
	bodies      bool
}

// NewInspectCommand returns the command that parses a single message and
// prints its parts.
func NewInspectCommand() *cobra.Command {
	var opts inspectOptions
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Parse one multipart/related body and print its parts",
		Long: `Parse one multipart/related body and print its parts.

Without --content-type the input must start with a MIME header block (an .eml
file for example) whose Content-Type header is used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd.InOrStdin(), cmd.OutOrStdout(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.contentType, "content-type", "", "Raw Content-Type header value of the message")
	flags.StringVarP(&opts.body, "body", "b", "-", "File holding the message body, - for stdin")
	flags.StringVarP(&opts.format, "format", "f", "text", "Output format: text, json, yaml, toml")
	flags.BoolVar(&opts.crlf, "crlf", false, "Convert lone LF line endings to CRLF before parsing")
	flags.BoolVar(&opts.nested, "nested", false, "Also split parts that are multipart themselves")
	flags.BoolVar(&opts.bodies, "bodies", false, "Include part bodies in the output")
	return cmd
}

func runInspect(stdin io.Reader, out io.Writer, opts inspectOptions) error {
	format, err := render.ParseFormat(opts.format)
	if err != nil {
		return err
	}

	var input io.Reader = stdin
	if opts.body != "-" {
		file, err := os.Open(opts.body)
		if err != nil {
			return fmt.Errorf("open body: %w", err)
		}
		defer file.Close()
		input = file
	}

	contentType := opts.contentType
	if contentType == "" {
		br := bufio.NewReader(input)
		header, err := textproto.ReadHeader(br)
		if err != nil {
			return fmt.Errorf("read header: %w", err)
		}
		contentType = mbox.HeaderValue(header, "Content-Type")
		if contentType == "" {
			return fmt.Errorf("input has no Content-Type header, pass --content-type")
		}
		input = br
	}

	if opts.crlf {
		data, err := io.ReadAll(input)
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		input = strings.NewReader(related.ToCRLF(string(data)))
	}

	ct, err := grammar.ParseContentType(contentType)
	if err != nil {
		return fmt.Errorf("parse message: %w", err)
	}
	parts, err := related.ParseReader(ct, input)
	if err != nil {
		return fmt.Errorf("parse message: %w", err)
	}

	doc := render.NewDocument(ct, parts, opts.bodies)
	if opts.nested {
		for i, p := range parts {
			nested, err := related.ParseNested(p)
			if errors.Is(err, related.ErrNotMultipart) {
				continue
			}
			if err != nil {
				return fmt.Errorf("part %d: %w", i, err)
			}
			doc.Parts[i].Parts = render.NewDocument(*p.ContentType, nested, opts.bodies).Parts
		}
	}

	return render.Write(out, doc, format)
}
