package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dhcgn/multipart-related/config"
	"github.com/dhcgn/multipart-related/filter"
	"github.com/dhcgn/multipart-related/model"
	"github.com/dhcgn/multipart-related/state"
	"github.com/dhcgn/multipart-related/stats"
)

type StageFunc func(context.Context) error

type stage struct {
	name string
	fn   StageFunc
}

// Runner wires the pipeline stages together. Stages registered with AddStage
// run once Start is called; every stats subscriber receives every event.
type Runner struct {
	cfg    config.Config
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	messages chan model.Envelope
	extracts chan model.Mail

	subMu       sync.RWMutex
	subscribers []chan stats.Event

	tracker state.Tracker
	filter  *filter.Filter
	stages  []stage

	workWG  sync.WaitGroup
	statsWG sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeMailboxOnce  sync.Once
	closeExtractsOnce sync.Once
	closeEventsOnce   sync.Once
	since             time.Time
}

func New(cfg config.Config, logger *slog.Logger) (*Runner, error) {
	tracker, err := state.NewFileTracker(cfg.StateDir, !cfg.DryRun)
	if err != nil {
		return nil, fmt.Errorf("state tracker: %w", err)
	}
	return NewWithTracker(cfg, tracker, logger)
}

// NewWithTracker builds a runner around an existing tracker, which the runner
// closes when Start returns.
func NewWithTracker(cfg config.Config, tracker state.Tracker, logger *slog.Logger) (*Runner, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	partFilter, err := filter.New(cfg.FilterOptions())
	if err != nil {
		_ = tracker.Close()
		return nil, fmt.Errorf("part filter: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		cfg:      cfg,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		messages: make(chan model.Envelope, 32),
		extracts: make(chan model.Mail, 32),
		tracker:  tracker,
		filter:   partFilter,
	}

	r.AddStage("bridge", r.bridge)
	return r, nil
}

func (r *Runner) Config() config.Config {
	return r.cfg
}

func (r *Runner) Logger() *slog.Logger {
	return r.logger
}

func (r *Runner) Context() context.Context {
	return r.ctx
}

func (r *Runner) Tracker() state.Tracker {
	return r.tracker
}

func (r *Runner) Filter() *filter.Filter {
	return r.filter
}

func (r *Runner) MailboxWriter() chan<- model.Envelope {
	return r.messages
}

func (r *Runner) CloseMailbox() {
	r.closeMailboxOnce.Do(func() {
		close(r.messages)
	})
}

func (r *Runner) Extracts() <-chan model.Mail {
	return r.extracts
}

func (r *Runner) EmitEvent(evt stats.Event) {
	r.subMu.RLock()
	defer r.subMu.RUnlock()
	for _, ch := range r.subscribers {
		select {
		case <-r.ctx.Done():
			return
		case ch <- evt:
		}
	}
}

func (r *Runner) SubscribeStats(name string, fn func(context.Context, <-chan stats.Event) error) {
	ch := make(chan stats.Event, 128)
	r.subMu.Lock()
	r.subscribers = append(r.subscribers, ch)
	r.subMu.Unlock()

	r.statsWG.Add(1)
	go func() {
		defer r.statsWG.Done()
		err := fn(r.ctx, ch)
		if err != nil && !errors.Is(err, context.Canceled) {
			r.fail(fmt.Errorf("%s stats: %w", name, err))
		}
		// keep draining so emitters never block on a finished subscriber
		for range ch {
		}
	}()
}

func (r *Runner) AddStage(name string, fn StageFunc) {
	r.stages = append(r.stages, stage{name: name, fn: fn})
}

// Start runs all stages and blocks until they finish. The first stage error
// cancels the remaining stages and is returned.
func (r *Runner) Start() error {
	r.since = time.Now()

	for _, s := range r.stages {
		r.workWG.Add(1)
		go func(s stage) {
			defer r.workWG.Done()
			if err := s.fn(r.ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.fail(fmt.Errorf("%s stage: %w", s.name, err))
			}
		}(s)
	}

	r.workWG.Wait()
	r.closeEvents()
	r.statsWG.Wait()

	r.cancel()

	if err := r.tracker.Close(); err != nil {
		r.fail(fmt.Errorf("close state: %w", err))
	}

	err := r.Err()
	duration := time.Since(r.since)
	if err != nil {
		r.logger.Error("pipeline failed", "duration", duration, "err", err)
		return err
	}

	r.logger.Info("pipeline completed", "duration", duration)
	return nil
}

// Err returns the first recorded pipeline error.
func (r *Runner) Err() error {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	return r.err
}

// bridge moves decoded messages from the mailbox channel to the extract
// channel, dropping those that failed, were skipped, repeat or lose every part
// to the filter.
func (r *Runner) bridge(ctx context.Context) error {
	defer r.closeExtracts()
	seen := make(map[string]struct{})
	for {
		var envelope model.Envelope
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-r.messages:
			if !ok {
				return nil
			}
			envelope = e
		}

		mail, ok := r.admit(envelope, seen)
		if !ok {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r.extracts <- mail:
			r.emitMbox(stats.EventTypeEnqueued, mail.ID, func(e *stats.Event) { e.Parts = len(mail.Selected()) })
		}
	}
}

func (r *Runner) admit(envelope model.Envelope, seen map[string]struct{}) (model.Mail, bool) {
	mail := envelope.Mail
	r.emitMbox(stats.EventTypeScanned, mail.ID, nil)

	switch {
	case envelope.Err != nil:
		r.emitMbox(stats.EventTypeError, mail.ID, func(e *stats.Event) { e.Err = envelope.Err })
		if r.cfg.FailFast {
			r.fail(fmt.Errorf("mbox envelope: %w", envelope.Err))
		}
		return mail, false
	case envelope.Skipped != "":
		r.emitMbox(stats.EventTypeSkipped, mail.ID, func(e *stats.Event) { e.Detail = envelope.Skipped })
		return mail, false
	}

	if _, dup := seen[mail.Hash]; dup || r.tracker.AlreadyProcessed(mail.Hash) {
		r.emitMbox(stats.EventTypeDuplicate, mail.ID, nil)
		return mail, false
	}
	seen[mail.Hash] = struct{}{}

	kept := r.filter.Indices(mail.Parts)
	dropped := len(mail.Parts) - len(kept)
	if dropped == 0 {
		return mail, true
	}
	r.emitMbox(stats.EventTypeFiltered, mail.ID, func(e *stats.Event) { e.Parts = dropped })
	if len(kept) == 0 {
		r.emitMbox(stats.EventTypeSkipped, mail.ID, func(e *stats.Event) { e.Detail = "all parts filtered" })
		return mail, false
	}
	// Parts stays whole so root and positions refer to the source message.
	mail.Kept = kept
	return mail, true
}

func (r *Runner) emitMbox(typ stats.EventType, id string, with func(*stats.Event)) {
	evt := stats.Event{Stage: stats.StageMbox, Type: typ, MessageID: id}
	if with != nil {
		with(&evt)
	}
	r.EmitEvent(evt)
}

func (r *Runner) closeExtracts() {
	r.closeExtractsOnce.Do(func() {
		close(r.extracts)
	})
}

func (r *Runner) closeEvents() {
	r.closeEventsOnce.Do(func() {
		r.subMu.Lock()
		defer r.subMu.Unlock()
		for _, ch := range r.subscribers {
			close(ch)
		}
	})
}

func (r *Runner) fail(err error) {
	if err == nil {
		return
	}
	r.errMu.Lock()
	if r.err == nil {
		r.err = err
		r.cancel()
	}
	r.errMu.Unlock()
}
