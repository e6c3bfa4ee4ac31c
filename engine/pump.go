package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/hrygo/tgrunner/telegram"
)

const defaultPumpRequestLimit = 100

// Pump is the UpdatePump of spec.md §4.2: a long-poll loop converting the
// server's at-least-once delivery into at-most-once via a monotonically
// advancing acknowledgement offset, advanced only after downstream
// emission (spec.md §4.2 "Acknowledgement semantics").
type Pump struct {
	client         telegram.API
	demux          *Demultiplexer
	timeout        time.Duration
	limit          int
	allowedUpdates []string

	// pace is a belt-and-suspenders floor on request frequency, guarding
	// against a tight loop if the server ever answers an empty batch
	// instantly instead of holding the long-poll open for timeout.
	pace *rate.Limiter

	metrics *Metrics

	nextOffset int
}

// SetMetrics attaches a Metrics sink; nil by default, and every recording
// call is nil-safe.
func (p *Pump) SetMetrics(m *Metrics) { p.metrics = m }

// NewPump constructs a Pump. timeout is both the getUpdates long-poll
// timeout and the base retry backoff duration (spec.md §4.2 step 5). limit
// <= 0 falls back to defaultPumpRequestLimit.
func NewPump(client telegram.API, demux *Demultiplexer, timeout time.Duration, limit int, allowedUpdates []string) *Pump {
	if limit <= 0 {
		limit = defaultPumpRequestLimit
	}
	return &Pump{
		client:         client,
		demux:          demux,
		timeout:        timeout,
		limit:          limit,
		allowedUpdates: allowedUpdates,
		pace:           rate.NewLimiter(rate.Every(20*time.Millisecond), 1),
	}
}

// NextOffset reports the current acknowledgement offset, for tests and
// metrics (spec.md §8 property 4, offset monotonicity).
func (p *Pump) NextOffset() int { return p.nextOffset }

// Run drives the pump until ctx is cancelled. A single long-poll call is
// bounded by timeout, so worst-case shutdown latency while blocked inside
// getUpdates is timeout, not unbounded. Run returns nil on cancellation;
// sustained upstream failure never returns an error, it only backs off and
// retries (spec.md §7: "the pump is the only component whose sustained
// failure stops the bot, and that only via the caller's shutdown signal").
func (p *Pump) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		if err := p.pace.Wait(ctx); err != nil {
			return nil
		}

		updates, err := p.client.GetUpdates(ctx, p.nextOffset, p.limit, int(p.timeout.Seconds()), p.allowedUpdates)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if p.metrics != nil {
				p.metrics.RecordPumpRequest("transient_error")
			}
			p.backoff(ctx, err)
			continue
		}
		if p.metrics != nil {
			p.metrics.RecordPumpRequest("ok")
		}

		for _, u := range updates {
			p.demux.Dispatch(u)
			if u.UpdateID >= p.nextOffset {
				p.nextOffset = u.UpdateID + 1
			}
		}
	}
}

func (p *Pump) backoff(ctx context.Context, err error) {
	sleep := p.timeout

	var tgErr *telegram.Error
	if errors.As(err, &tgErr) && tgErr.RetryAfter > 0 {
		if hinted := time.Duration(tgErr.RetryAfter) * time.Second; hinted > sleep {
			sleep = hinted
		}
	}

	slog.Warn("engine: pump request failed, backing off", "error", err, "sleep", sleep)
	cancellableSleep(ctx, sleep)
}

func cancellableSleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
