package sweeper

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/livecart/lc-checkout/internal/module/buyerapp/checkout"
)

type fakeCheckoutUseCase struct {
	checkout.CheckoutUseCase
	calls atomic.Int64
	err   error
}

func (f *fakeCheckoutUseCase) ExpireOverdue(ctx context.Context) (int, error) {
	f.calls.Add(1)
	if f.err != nil {
		return 0, f.err
	}
	return 1, nil
}

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestSweeper_Run(t *testing.T) {
	t.Parallel()

	t.Run("sweeps on every tick until cancelled", func(t *testing.T) {
		uc := &fakeCheckoutUseCase{}
		s := New(newTestLogger(), 5*time.Millisecond, uc)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			s.Run(ctx)
			close(done)
		}()

		deadline := time.After(time.Second)
		for uc.calls.Load() < 3 {
			select {
			case <-deadline:
				t.Fatalf("expected at least 3 sweeps, got %d", uc.calls.Load())
			case <-time.After(time.Millisecond):
			}
		}

		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("expected Run to return after cancellation")
		}
	})

	t.Run("keeps running after a failed sweep", func(t *testing.T) {
		uc := &fakeCheckoutUseCase{err: context.DeadlineExceeded}
		s := New(newTestLogger(), 5*time.Millisecond, uc)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go s.Run(ctx)

		deadline := time.After(time.Second)
		for uc.calls.Load() < 2 {
			select {
			case <-deadline:
				t.Fatalf("expected sweeping to continue after an error, got %d calls", uc.calls.Load())
			case <-time.After(time.Millisecond):
			}
		}
	})
}
