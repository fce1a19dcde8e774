package resource

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"golang.org/x/sync/errgroup"
)

// LoadAll runs List on every store concurrently and waits for all of them to
// settle. One failure does not cancel the others; failures are joined.
func LoadAll(ctx context.Context, params url.Values, stores ...*Store) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)

	for _, st := range stores {
		g.Go(func() error {
			if _, err := st.List(ctx, params); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s/%s: %w", st.Role(), st.Resource(), err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}
