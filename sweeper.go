package gateway

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// ActionKeySweeper purges action keys whose tokens can no longer verify.
type ActionKeySweeper struct {
	store    ActionKeyStore
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time
	logger   Logger
}

func NewActionKeySweeper(store ActionKeyStore, interval time.Duration) *ActionKeySweeper {
	return &ActionKeySweeper{
		store:    store,
		interval: interval,
		timeout:  DefaultCommandTimeout,
		now:      time.Now,
		logger:   defLogger{},
	}
}

func (s *ActionKeySweeper) WithLogger(logger Logger) *ActionKeySweeper {
	s.logger = normalizeLogger(logger)
	return s
}

func (s *ActionKeySweeper) WithClock(now func() time.Time) *ActionKeySweeper {
	if now != nil {
		s.now = now
	}
	return s
}

// Sweep deletes every record that expired before now.
func (s *ActionKeySweeper) Sweep(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	removed, err := s.store.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sweep expired action keys")
	}

	if removed > 0 {
		s.logger.Info("swept %d expired action keys", removed)
	}
	return removed, nil
}

// Start runs Sweep on every interval tick until ctx is done. A non positive
// interval disables the sweeper. The returned channel closes once the loop
// exits.
func (s *ActionKeySweeper) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	if s.interval <= 0 {
		close(done)
		return done
	}

	go func() {
		defer close(done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Sweep(ctx); err != nil {
					s.logger.Error("action key sweep failed: %v", err)
				}
			}
		}
	}()

	return done
}
