// Package notify delivers result messages to parents without blocking the
// submission path.
package notify

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pavelanni/examhall/internal/i18n"
	"github.com/pavelanni/examhall/internal/model"
)

// Sink delivers one rendered message.
type Sink interface {
	Send(ctx context.Context, to, body string) error
}

// Config controls a Dispatcher.
type Config struct {
	Lang        string        // message language
	CountryCode string        // prepended to numbers without a leading '+'
	QueueSize   int           // events buffered before new ones are dropped
	SendTimeout time.Duration // per-message delivery timeout
}

// Dispatcher queues result events and sends them from one background worker.
type Dispatcher struct {
	sink Sink
	cfg  Config

	mu     sync.RWMutex
	closed bool
	queue  chan model.ResultEvent
	done   chan struct{}
}

// NewDispatcher starts a dispatcher delivering through sink.
func NewDispatcher(sink Sink, cfg Config) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.CountryCode == "" {
		cfg.CountryCode = "+91"
	}
	if cfg.Lang == "" {
		cfg.Lang = "en"
	}
	d := &Dispatcher{
		sink:  sink,
		cfg:   cfg,
		queue: make(chan model.ResultEvent, cfg.QueueSize),
		done:  make(chan struct{}),
	}
	go d.run()
	return d
}

// Publish enqueues ev. It never blocks: when the queue is full or the
// dispatcher is closed the event is dropped with a warning.
func (d *Dispatcher) Publish(ev model.ResultEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		slog.Warn("notification dropped: dispatcher closed", "roll", ev.Roll, "exam_id", ev.ExamID)
		return
	}
	select {
	case d.queue <- ev:
	default:
		slog.Warn("notification dropped: queue full", "roll", ev.Roll, "exam_id", ev.ExamID)
	}
}

// Close stops accepting events and waits until the queue drains or ctx ends.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for ev := range d.queue {
		d.deliver(ev)
	}
}

func (d *Dispatcher) deliver(ev model.ResultEvent) {
	to := NormalizePhone(ev.Parent, d.cfg.CountryCode)
	if to == "" {
		slog.Debug("no parent number, skipping notification", "roll", ev.Roll)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SendTimeout)
	defer cancel()

	body := Render(i18n.WithLanguage(ctx, d.cfg.Lang), ev)
	if err := d.sink.Send(ctx, to, body); err != nil {
		slog.Error("notification failed", "roll", ev.Roll, "exam_id", ev.ExamID, "error", err)
		return
	}
	slog.Info("notification sent", "roll", ev.Roll, "exam_id", ev.ExamID)
}

// Render formats the result message in the context's language.
func Render(ctx context.Context, ev model.ResultEvent) string {
	return i18n.Td(ctx, "ResultSMS", map[string]any{
		"Name":    ev.Name,
		"Roll":    ev.Roll,
		"Score":   ev.Score,
		"Total":   ev.Total,
		"Year":    ev.Cohort.Year,
		"Branch":  ev.Cohort.Branch,
		"Section": ev.Cohort.Section,
	})
}

// NormalizePhone strips spaces and dashes and prefixes countryCode when the
// number has no leading '+'. An empty number stays empty.
func NormalizePhone(number, countryCode string) string {
	n := strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(number))
	if n == "" || strings.HasPrefix(n, "+") {
		return n
	}
	return countryCode + n
}
