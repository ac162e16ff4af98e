package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// PrunerConfig configures the background run-retention job.
type PrunerConfig struct {
	Store    RunStore
	Schedule string // five-field UTC cron expression
	MaxAge   time.Duration
	Now      func() time.Time
	Logger   *slog.Logger
}

// Pruner deletes runs older than MaxAge on a cron schedule.
type Pruner struct {
	store    RunStore
	schedule string
	maxAge   time.Duration
	now      func() time.Time
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPruner validates cfg and creates a stopped pruner.
func NewPruner(cfg PrunerConfig) (*Pruner, error) {
	if cfg.Store == nil {
		return nil, errors.New("run pruner store is nil")
	}
	if cfg.MaxAge <= 0 {
		return nil, errors.New("run pruner max age must be positive")
	}
	if _, err := parseCronExpressionUTC(cfg.Schedule); err != nil {
		return nil, err
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pruner{
		store:    cfg.Store,
		schedule: cfg.Schedule,
		maxAge:   cfg.MaxAge,
		now:      cfg.Now,
		logger:   cfg.Logger,
	}, nil
}

// Start launches the schedule loop. Calling Start on a running pruner is
// a no-op.
func (p *Pruner) Start(ctx context.Context) error {
	if p == nil {
		return errors.New("run pruner is nil")
	}

	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return nil
	}
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	go func() {
		defer close(done)
		for {
			next, err := nextCronRunUTC(p.schedule, p.now())
			if err != nil {
				p.logger.Error("run pruner schedule", "error", err)
				return
			}
			timer := time.NewTimer(time.Until(next))
			select {
			case <-loopCtx.Done():
				timer.Stop()
				return
			case <-timer.C:
				_, _ = p.RunOnce(loopCtx)
			}
		}
	}()
	return nil
}

// Stop stops the schedule loop and waits for it to exit or for ctx.
func (p *Pruner) Stop(ctx context.Context) error {
	if p == nil {
		return nil
	}

	p.mu.Lock()
	cancel := p.cancel
	done := p.done
	p.cancel = nil
	p.done = nil
	p.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce deletes every run older than MaxAge.
func (p *Pruner) RunOnce(ctx context.Context) (int64, error) {
	cutoff := p.now().Add(-p.maxAge)
	n, err := p.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		p.logger.Error("run pruner failed", "error", err)
		return 0, err
	}
	if n > 0 {
		p.logger.Info("pruned runs", "count", n, "cutoff", cutoff)
	}
	return n, nil
}
