package resource

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Poll calls List immediately and then every interval until ctx is done.
// A tick is skipped while a previous List on this store is still pending.
// Poll blocks, waits for any in-flight fetch to settle before returning, and
// returns nil once ctx is done. Only one Poll may run per store at a time.
func (s *Store) Poll(ctx context.Context, interval time.Duration, params url.Values) error {
	if interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", interval)
	}
	if !s.polling.CompareAndSwap(false, true) {
		return fmt.Errorf("%s/%s: already polling", s.role, s.resource)
	}
	defer s.polling.Store(false)

	var (
		wg   sync.WaitGroup
		busy = make(chan struct{}, 1)
	)
	defer wg.Wait()

	tick := func() {
		if s.listing.Load() > 0 {
			s.skip()
			return
		}
		select {
		case busy <- struct{}{}:
		default:
			s.skip()
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-busy }()
			if _, err := s.List(ctx, params); err != nil && ctx.Err() == nil {
				s.logger.Debug("Poll fetch failed", zap.Error(err))
			}
		}()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	tick()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			tick()
		}
	}
}

func (s *Store) skip() {
	s.metrics.PollSkipped(string(s.resource))
	s.logger.Debug("Poll tick skipped, previous fetch still pending")
}
