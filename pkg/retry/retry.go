package retry

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/StefanHeng/test-ECG-Signal-Viewer/errors"
)

// Config provides retry configuration
type Config struct {
	MaxAttempts  int           // Maximum number of attempts, at least one is made
	InitialDelay time.Duration // Delay before the second attempt
	MaxDelay     time.Duration // Upper bound of any delay
	Multiplier   float64       // Backoff multiplier (typically 2.0)
	AddJitter    bool          // Add up to 25% to each delay
}

// DefaultConfig returns the policy for operations a user is waiting on
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
		AddJitter:    true,
	}
}

// Startup returns the policy for connecting to backends while the process
// starts, when they may still be coming up next to it
func Startup() Config {
	return Config{
		MaxAttempts:  10,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   1.5,
		AddJitter:    true,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	var problem string
	switch {
	case c.InitialDelay < 0 || c.MaxDelay < 0:
		problem = "delays cannot be negative"
	case c.Multiplier < 1 && c.Multiplier != 0:
		problem = "multiplier must be at least 1"
	case c.MaxDelay > 0 && c.MaxDelay < c.InitialDelay:
		problem = "max delay must be >= initial delay"
	}
	if problem != "" {
		return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrInvalidConfig, problem),
			"retry", "Validate", "check retry policy")
	}
	return nil
}

// Do runs fn until it succeeds, fails with an error that is not transient,
// or the attempts are used up. The last error is returned unchanged so its
// classification survives.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialDelay == 0 {
		cfg.InitialDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = 5 * time.Second
	}
	if cfg.Multiplier == 0 {
		cfg.Multiplier = 2.0
	}

	delay := cfg.InitialDelay
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil || !errors.IsTransient(err) || attempt >= cfg.MaxAttempts {
			return err
		}
		if ctx.Err() != nil {
			return err
		}

		sleep := delay
		if cfg.AddJitter && delay >= 4 {
			sleep += time.Duration(rand.Int64N(int64(delay / 4)))
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}

		next := time.Duration(float64(delay) * cfg.Multiplier)
		if next > cfg.MaxDelay || next < delay {
			next = cfg.MaxDelay
		}
		delay = next
	}
}

// DoWithResult executes fn with retry and returns both result and error
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func() error {
		var innerErr error
		result, innerErr = fn()
		return innerErr
	})
	return result, err
}
