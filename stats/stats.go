package stats

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"
)

type Stage string

const (
	StageMbox    Stage = "mbox"
	StageExtract Stage = "extract"
)

type EventType string

const (
	EventTypeScanned       EventType = "scanned"
	EventTypeSkipped       EventType = "skipped"
	EventTypeEnqueued      EventType = "enqueued"
	EventTypeExtracted     EventType = "extracted"
	EventTypeDryRunExtract EventType = "dry_run_extracted"
	EventTypeDuplicate     EventType = "duplicate"
	EventTypeFiltered      EventType = "filtered"
	EventTypeError         EventType = "error"
)

// Event is emitted by the pipeline stages. Parts carries the number of parts
// the event refers to: written for extracted events, dropped for filtered ones.
type Event struct {
	Stage     Stage
	Type      EventType
	MessageID string
	Parts     int
	Err       error
	Detail    string
}

type Summary struct {
	Scanned         int
	Skipped         int
	Enqueued        int
	Extracted       int
	DryRunExtracted int
	Duplicates      int
	PartsWritten    int
	PartsFiltered   int
	Errors          int
	LastError       error
}

func (s Summary) LogAttrs() []any {
	attrs := []any{
		"scanned", s.Scanned,
		"skipped", s.Skipped,
		"enqueued", s.Enqueued,
		"extracted", s.Extracted,
		"dryRunExtracted", s.DryRunExtracted,
		"duplicates", s.Duplicates,
		"partsWritten", s.PartsWritten,
		"partsFiltered", s.PartsFiltered,
		"errors", s.Errors,
	}
	if s.LastError != nil {
		attrs = append(attrs, "lastError", s.LastError.Error())
	}
	return attrs
}

// Collector folds events into a Summary. It is safe for concurrent use.
type Collector struct {
	mu        sync.Mutex
	counts    map[EventType]int
	parts     map[EventType]int
	reasons   map[string]int
	lastError error
}

func NewCollector() *Collector {
	return &Collector{
		counts:  make(map[EventType]int),
		parts:   make(map[EventType]int),
		reasons: make(map[string]int),
	}
}

// Run consumes events until the channel closes or ctx is done.
func (c *Collector) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			c.Apply(evt)
		}
	}
}

// Apply folds a single event into the summary.
func (c *Collector) Apply(evt Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[evt.Type]++
	c.parts[evt.Type] += evt.Parts
	if evt.Type == EventTypeSkipped && evt.Detail != "" {
		c.reasons[evt.Detail]++
	}
	if evt.Type == EventTypeError && evt.Err != nil {
		c.lastError = evt.Err
	}
}

func (c *Collector) Snapshot() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Summary{
		Scanned:         c.counts[EventTypeScanned],
		Skipped:         c.counts[EventTypeSkipped],
		Enqueued:        c.counts[EventTypeEnqueued],
		Extracted:       c.counts[EventTypeExtracted],
		DryRunExtracted: c.counts[EventTypeDryRunExtract],
		Duplicates:      c.counts[EventTypeDuplicate],
		PartsWritten:    c.parts[EventTypeExtracted],
		PartsFiltered:   c.parts[EventTypeFiltered],
		Errors:          c.counts[EventTypeError],
		LastError:       c.lastError,
	}
}

// SkipReasons counts skipped messages per reason, e.g. their media type.
func (c *Collector) SkipReasons() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.reasons))
	for k, v := range c.reasons {
		out[k] = v
	}
	return out
}

type EventStream interface {
	SubscribeStats(name string, fn func(context.Context, <-chan Event) error)
}

type Reporter struct {
	collector *Collector
	logger    *slog.Logger
	started   time.Time
}

func NewReporter(stream EventStream, logger *slog.Logger) *Reporter {
	reporter := &Reporter{
		collector: NewCollector(),
		logger:    logger,
		started:   time.Now(),
	}
	stream.SubscribeStats("stats-reporter", reporter.consume)
	return reporter
}

func (r *Reporter) consume(ctx context.Context, events <-chan Event) error {
	r.collector.Run(ctx, events)
	if r.logger == nil {
		return ctx.Err()
	}

	attrs := append(r.Summary().LogAttrs(), "duration", time.Since(r.started))
	if err := ctx.Err(); err != nil {
		r.logger.Debug("stats collection stopped", append(attrs, "err", err)...)
		return err
	}
	r.logger.Info("stats summary", attrs...)
	for reason, n := range r.collector.SkipReasons() {
		r.logger.Debug("skipped messages", "reason", reason, "count", n)
	}
	return nil
}

func (r *Reporter) Summary() Summary {
	return r.collector.Snapshot()
}

// PrettyPrintTop prints the top N most frequent items in a map to stdout.
func PrettyPrintTop(m map[string]int, limit int) {
	FprintTop(os.Stdout, m, limit)
}

// FprintTop writes the top N most frequent items in a map to w. Ties are
// ordered by key.
func FprintTop(w io.Writer, m map[string]int, limit int) {
	type pair struct {
		Key   string
		Value int
	}

	pairs := make([]pair, 0, len(m))
	for k, v := range m {
		pairs = append(pairs, pair{k, v})
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Value != pairs[j].Value {
			return pairs[i].Value > pairs[j].Value
		}
		return pairs[i].Key < pairs[j].Key
	})

	for i := 0; i < limit && i < len(pairs); i++ {
		fmt.Fprintf(w, "%d. %s (%d)\n", i+1, pairs[i].Key, pairs[i].Value)
	}
}
