// Package network probes backend reachability.
package network

import (
	"context"
	"time"

	"github.com/jbctechsolutions/cropcare/internal/infrastructure/logging"
)

const (
	DefaultInterval = 15 * time.Second
	DefaultTimeout  = 5 * time.Second
)

// HealthChecker answers whether the backend can be reached.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Notifier receives probe results.
type Notifier interface {
	Notify(ctx context.Context, online bool) bool
}

// Prober periodically checks reachability and reports it to a Notifier.
type Prober struct {
	checker  HealthChecker
	notifier Notifier
	interval time.Duration
	timeout  time.Duration
	logger   *logging.Logger
}

// NewProber creates a prober. Non-positive durations use the defaults.
func NewProber(checker HealthChecker, notifier Notifier, interval, timeout time.Duration, logger *logging.Logger) *Prober {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Prober{checker: checker, notifier: notifier, interval: interval, timeout: timeout, logger: logger}
}

// Probe runs a single check and reports the result. It returns the observed state.
func (p *Prober) Probe(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, p.timeout)
	err := p.checker.HealthCheck(pctx)
	cancel()

	if ctx.Err() != nil {
		// shutting down; the result says nothing about the network
		return false
	}
	online := err == nil
	if !online {
		p.logger.DebugContext(ctx, "reachability probe failed", "error", err)
	}
	p.notifier.Notify(ctx, online)
	return online
}

// Run probes immediately and then every interval until ctx is done.
func (p *Prober) Run(ctx context.Context) error {
	p.Probe(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.Probe(ctx)
		}
	}
}
