package connectivity

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Pinger checks whether the remote store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Prober periodically pings the remote store and feeds the result.
type Prober struct {
	pinger   Pinger
	feed     *Feed
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewProber creates a prober. Zero durations fall back to 5s interval and
// 2s timeout.
func NewProber(p Pinger, f *Feed, interval, timeout time.Duration, logger *zap.Logger) *Prober {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Prober{
		pinger:   p,
		feed:     f,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
	}
}

// Start probes once immediately and then on every interval.
func (p *Prober) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go p.loop(ctx)
}

// Stop stops the probe loop and waits for it to exit.
func (p *Prober) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
}

func (p *Prober) loop(ctx context.Context) {
	defer close(p.done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Probe(ctx)
	for {
		select {
		case <-ticker.C:
			p.Probe(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Probe pings once and applies the resulting reading.
func (p *Prober) Probe(ctx context.Context) State {
	pctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	reading := Online
	if err := p.pinger.Ping(pctx); err != nil {
		if ctx.Err() != nil {
			return p.feed.Current()
		}
		reading = Offline
		p.logger.Debug("remote ping failed", zap.Error(err))
	}
	if p.feed.Set(reading) {
		p.logger.Info("connectivity changed", zap.String("state", string(reading)))
	}
	return reading
}
