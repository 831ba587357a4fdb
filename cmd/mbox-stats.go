package cmd

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dhcgn/multipart-related/filter"
	"github.com/dhcgn/multipart-related/grammar"
	"github.com/dhcgn/multipart-related/mbox"
	"github.com/dhcgn/multipart-related/related"
	"github.com/dhcgn/multipart-related/stats"
)

// Report categories, one CSV file each.
const (
	categoryMediaType   = "Media-Type"
	categoryRelatedType = "Related-Type"
	categoryPartType    = "Part-Type"
	categoryFailure     = "Failure"
)

var categories = []string{categoryMediaType, categoryRelatedType, categoryPartType, categoryFailure}

type mboxStatsOptions struct {
	reportDir  string
	topN       int
	crlf       bool
	filterOpts filter.Options
}

type mboxStats struct {
	messages int
	related  int
	failed   int
	parts    int
	filtered int
	counter  map[string]map[string]int
}

// NewMboxStatsCommand returns the command that analyses an mbox archive.
func NewMboxStatsCommand() *cobra.Command {
	var opts mboxStatsOptions
	cmd := &cobra.Command{
		Use:   "mbox-stats [mbox file]",
		Short: "Analyse the multipart/related messages of an mbox file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMboxStats(cmd.OutOrStdout(), args[0], opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.reportDir, "output", "o", ".", "Output directory for CSV reports")
	flags.IntVarP(&opts.topN, "top", "t", 10, "Number of top items to display in statistics")
	flags.BoolVar(&opts.crlf, "crlf", true, "Convert lone LF line endings to CRLF before splitting bodies")
	flags.StringArrayVar(&opts.filterOpts.MediaTypes, "media-type", nil, "Glob allow-list applied to part media types")
	flags.StringArrayVar(&opts.filterOpts.IncludeHeader, "include-header", nil, "Regex allow-list applied to part headers (mutually exclusive with exclude flags)")
	flags.StringArrayVar(&opts.filterOpts.IncludeBody, "include-body", nil, "Regex allow-list applied to part bodies (mutually exclusive with exclude flags)")
	flags.StringArrayVar(&opts.filterOpts.ExcludeHeader, "exclude-header", nil, "Regex block-list applied to part headers (mutually exclusive with include flags)")
	flags.StringArrayVar(&opts.filterOpts.ExcludeBody, "exclude-body", nil, "Regex block-list applied to part bodies (mutually exclusive with include flags)")
	return cmd
}

func runMboxStats(out io.Writer, mboxPath string, opts mboxStatsOptions) error {
	f, err := filter.New(opts.filterOpts)
	if err != nil {
		return fmt.Errorf("create filter: %w", err)
	}

	fmt.Fprintln(out, "Analyzing mbox file:", mboxPath)

	s := &mboxStats{counter: make(map[string]map[string]int)}
	for _, c := range categories {
		s.counter[c] = make(map[string]int)
	}

	err = mbox.Read(mboxPath, func(m *mbox.MboxMessage) error {
		s.messages++

		contentType := mbox.HeaderValue(m.Header, "Content-Type")
		mediaType := strings.ToLower(mbox.MediaType(contentType))
		if mediaType == "" {
			mediaType = "(none)"
		}
		s.counter[categoryMediaType][mediaType]++
		if mediaType != mbox.RelatedType {
			return nil
		}

		body := string(m.Body)
		if opts.crlf {
			body = related.ToCRLF(body)
		}
		parts, err := related.ParseMessages(contentType, body)
		if err != nil {
			s.failed++
			s.counter[categoryFailure][failureClass(err)]++
			return nil
		}

		s.related++
		if ct, err := grammar.ParseContentType(contentType); err == nil {
			if typ, ok := ct.Attr("type"); ok {
				s.counter[categoryRelatedType][strings.ToLower(typ)]++
			}
		}

		kept := f.Parts(parts)
		s.filtered += len(parts) - len(kept)
		for _, p := range kept {
			s.parts++
			partType := "(none)"
			if p.ContentType != nil {
				partType = strings.ToLower(p.ContentType.Type())
			}
			s.counter[categoryPartType][partType]++
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("error reading mbox file: %w", err)
	}

	printMboxStats(out, s, f, opts.topN)

	if err := saveCSVReports(s.counter, categories, opts.reportDir, 1000); err != nil {
		return fmt.Errorf("error saving CSV reports: %w", err)
	}
	fmt.Fprintf(out, "\nReports saved to directory: %s\n", opts.reportDir)
	return nil
}

func failureClass(err error) string {
	switch {
	case errors.Is(err, related.ErrMissingBoundary):
		return "missing boundary"
	case errors.Is(err, grammar.ErrDuplicateAttribute):
		return "duplicate attribute"
	case errors.Is(err, grammar.ErrDuplicateHeader):
		return "duplicate header"
	case errors.Is(err, grammar.ErrSyntax):
		var syntax *grammar.SyntaxError
		if errors.As(err, &syntax) {
			return "syntax: expected " + syntax.Expected
		}
		return "syntax"
	default:
		return "other"
	}
}

func printMboxStats(out io.Writer, s *mboxStats, f *filter.Filter, topN int) {
	var failPercent float64
	if attempted := s.related + s.failed; attempted > 0 {
		failPercent = float64(s.failed) / float64(attempted) * 100
	}
	fmt.Fprintf(out, "Messages: %d, multipart/related: %d, failed to parse: %d (%.2f%%)\n", s.messages, s.related, s.failed, failPercent)
	fmt.Fprintf(out, "Parts: %d (filtered out %d)\n\n", s.parts, s.filtered)

	fs := f.Stats()
	groups := []struct {
		title    string
		patterns []string
		hits     map[string]int
	}{
		{"Media Type Filters", fs.MediaTypePatterns, fs.MediaTypeHits},
		{"Include Header Filters", fs.IncludeHeaderPatterns, fs.IncludeHeaderHits},
		{"Include Body Filters", fs.IncludeBodyPatterns, fs.IncludeBodyHits},
		{"Exclude Header Filters", fs.ExcludeHeaderPatterns, fs.ExcludeHeaderHits},
		{"Exclude Body Filters", fs.ExcludeBodyPatterns, fs.ExcludeBodyHits},
	}
	hasFilterStats := false
	for _, g := range groups {
		if len(g.patterns) == 0 {
			continue
		}
		hasFilterStats = true
		fmt.Fprintf(out, "%s:\n", g.title)
		printFilterHits(out, g.patterns, g.hits)
		fmt.Fprintln(out)
	}
	if hasFilterStats {
		fmt.Fprintln(out, "---")
		fmt.Fprintln(out)
	}

	for _, c := range categories {
		fmt.Fprintf(out, "Top %d %s:\n", topN, c)
		stats.FprintTop(out, s.counter[c], topN)
		fmt.Fprintln(out)
	}
}

func saveCSVReports(counter map[string]map[string]int, names []string, dir string, limit int) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	for _, name := range names {
		type pair struct {
			Key   string
			Value int
		}
		pairs := make([]pair, 0, len(counter[name]))
		for k, v := range counter[name] {
			pairs = append(pairs, pair{k, v})
		}
		sort.Slice(pairs, func(i, j int) bool {
			if pairs[i].Value != pairs[j].Value {
				return pairs[i].Value > pairs[j].Value
			}
			return pairs[i].Key < pairs[j].Key
		})

		records := [][]string{{"Value", "Count"}}
		for i := 0; i < limit && i < len(pairs); i++ {
			records = append(records, []string{pairs[i].Key, strconv.Itoa(pairs[i].Value)})
		}

		path := filepath.Join(dir, fmt.Sprintf("report_%s.csv", normalizeReportName(name)))
		if err := writeCSV(path, records); err != nil {
			return err
		}
	}
	return nil
}

func writeCSV(path string, records [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := csv.NewWriter(file).WriteAll(records); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func normalizeReportName(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", "_")
	return strings.ReplaceAll(name, " ", "_")
}

func printFilterHits(out io.Writer, patterns []string, hits map[string]int) {
	sorted := append([]string(nil), patterns...)
	sort.Slice(sorted, func(i, j int) bool {
		if hits[sorted[i]] != hits[sorted[j]] {
			return hits[sorted[i]] > hits[sorted[j]]
		}
		return sorted[i] < sorted[j]
	})

	for _, p := range sorted {
		if n := hits[p]; n > 0 {
			fmt.Fprintf(out, "  ✓ %s: %d hits\n", p, n)
		} else {
			fmt.Fprintf(out, "  ✗ %s: 0 hits\n", p)
		}
	}
}
