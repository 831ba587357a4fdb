package progress

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pterm/pterm"

	"github.com/dhcgn/multipart-related/stats"
)

// Bar shows extraction progress over the messages of an archive.
type Bar struct {
	pb          *pterm.ProgressbarPrinter
	total       int
	alreadyDone int
	mu          sync.Mutex
	enabled     bool
}

// New creates a progress bar when logLevel is "info"; other levels keep the
// plain log output.
func New(total int, alreadyDone int, logLevel string) *Bar {
	bar := &Bar{
		total:       total,
		alreadyDone: alreadyDone,
		enabled:     logLevel == "info" && total > 0,
	}
	if !bar.enabled {
		return bar
	}

	pb, err := pterm.DefaultProgressbar.
		WithTotal(total).
		WithTitle("Extracting parts").
		Start()
	if err != nil {
		bar.enabled = false
		return bar
	}
	bar.pb = pb

	pterm.Info.Printf("Messages in mbox: %d\n", total)
	pterm.Info.Printf("Already extracted: %d\n", alreadyDone)
	pterm.Println()
	return bar
}

// Enabled reports whether the bar is drawn.
func (b *Bar) Enabled() bool {
	return b != nil && b.enabled && b.pb != nil
}

// Update advances the bar once per scanned message.
func (b *Bar) Update(evt stats.Event) {
	if !b.Enabled() {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch evt.Type {
	case stats.EventTypeScanned:
		b.pb.Increment()
		if evt.MessageID != "" {
			b.pb.UpdateTitle("Extracting: " + shorten(evt.MessageID, 40))
		}
	case stats.EventTypeError:
		if evt.Err != nil {
			pterm.Error.Printf("%s: %v\n", evt.Stage, evt.Err)
		}
	}
}

func shorten(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// Stop finalizes the progress bar.
func (b *Bar) Stop() {
	if !b.Enabled() {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pb.Current < b.total {
		b.pb.Current = b.total
	}
	_, _ = b.pb.Stop()
	pterm.Success.Println("Extraction complete!")
}

// Subscriber feeds stats events into the bar until the stream closes.
func (b *Bar) Subscriber(ctx context.Context, events <-chan stats.Event) error {
	defer b.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			b.Update(evt)
		}
	}
}

// Reporter prints a pterm summary once the pipeline is done.
type Reporter struct {
	bar       *Bar
	collector *stats.Collector
	logger    *slog.Logger
	started   time.Time
}

// NewReporter subscribes the bar and a summary collector to stream. It
// returns nil when the bar is disabled so callers fall back to stats.Reporter.
func NewReporter(stream stats.EventStream, bar *Bar, logger *slog.Logger) *Reporter {
	if !bar.Enabled() {
		return nil
	}
	reporter := &Reporter{
		bar:       bar,
		collector: stats.NewCollector(),
		logger:    logger,
		started:   time.Now(),
	}
	stream.SubscribeStats("progress-bar", bar.Subscriber)
	stream.SubscribeStats("progress-stats", reporter.collectStats)
	return reporter
}

// Summary returns the counters collected so far.
func (r *Reporter) Summary() stats.Summary {
	return r.collector.Snapshot()
}

func (r *Reporter) collectStats(ctx context.Context, events <-chan stats.Event) error {
	r.collector.Run(ctx, events)
	summary := r.collector.Snapshot()

	pterm.Println()
	pterm.DefaultSection.Println("Summary")
	pterm.Info.Printf("Duration: %v\n", time.Since(r.started).Round(time.Millisecond))
	pterm.Info.Printf("Scanned: %d\n", summary.Scanned)
	pterm.Info.Printf("Skipped (not multipart/related or fully filtered): %d\n", summary.Skipped)
	pterm.Info.Printf("Extracted: %d (%d parts)\n", summary.Extracted, summary.PartsWritten)
	pterm.Info.Printf("Dry-run extracted: %d\n", summary.DryRunExtracted)
	pterm.Info.Printf("Duplicates: %d\n", summary.Duplicates)
	pterm.Info.Printf("Parts filtered: %d\n", summary.PartsFiltered)
	pterm.Info.Printf("Errors: %d\n", summary.Errors)
	if summary.LastError != nil {
		pterm.Error.Printf("Last error: %v\n", summary.LastError)
	}
	if r.logger != nil {
		r.logger.Debug("stats summary", summary.LogAttrs()...)
	}
	return nil
}
