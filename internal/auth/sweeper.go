// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bagbot Contributors

package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultSweepInterval is how often expired entries are removed.
const DefaultSweepInterval = 5 * time.Minute

// Expirer is a store that can drop its expired entries.
type Expirer interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// SweepTarget names a store for logging and metrics.
type SweepTarget struct {
	Kind  string
	Store Expirer
}

// Sweeper periodically removes expired reset tokens and sessions. Stores
// already drop expired entries lazily on lookup; the sweeper bounds the
// memory held by entries nobody looks up again.
//
// The Sweeper runs a background goroutine. Call Close to stop it.
type Sweeper struct {
	targets []SweepTarget
	logger  *slog.Logger

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSweeper creates a Sweeper and starts its background goroutine.
// A non-positive interval uses DefaultSweepInterval; a nil logger uses
// slog.Default().
func NewSweeper(interval time.Duration, logger *slog.Logger, targets ...SweepTarget) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Sweeper{
		targets:  targets,
		logger:   logger,
		stopChan: make(chan struct{}),
	}

	s.wg.Add(1)
	go s.loop(interval)

	return s
}

// Sweep runs one pass over every target and returns the total removed.
// Failures are logged and do not stop the pass.
func (s *Sweeper) Sweep(ctx context.Context) int64 {
	var total int64
	for _, t := range s.targets {
		n, err := t.Store.DeleteExpired(ctx)
		if err != nil {
			s.logger.WarnContext(ctx, "expiry sweep failed", "kind", t.Kind, "error", err)
			continue
		}
		if n > 0 {
			ExpiredSwept.WithLabelValues(t.Kind).Add(float64(n))
			s.logger.DebugContext(ctx, "expired entries swept", "kind", t.Kind, "count", n)
		}
		total += n
	}
	return total
}

func (s *Sweeper) loop(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-s.stopChan
		cancel()
	}()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Close stops the background goroutine and waits for it to exit. It is safe
// to call more than once.
func (s *Sweeper) Close() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
}
