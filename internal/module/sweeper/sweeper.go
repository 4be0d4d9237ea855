package sweeper

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/livecart/lc-checkout/internal/module/buyerapp/checkout"
)

// Sweeper periodically moves overdue checkout intents to EXPIRED. Every
// expiry is a conditional write, so the sweeper racing an in-flight
// confirmation is safe: whichever write lands first wins and the loser
// no-ops.
type Sweeper struct {
	logger   *logrus.Logger
	interval time.Duration
	useCase  checkout.CheckoutUseCase
}

func New(logger *logrus.Logger, interval time.Duration, useCase checkout.CheckoutUseCase) *Sweeper {
	return &Sweeper{
		logger:   logger,
		interval: interval,
		useCase:  useCase,
	}
}

// Run blocks until ctx is cancelled, sweeping once per interval.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.WithField("interval", s.interval.String()).Info("expiry sweeper started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-ctx.Done():
			s.logger.Info("expiry sweeper stopped")
			return
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	expired, err := s.useCase.ExpireOverdue(ctx)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("sweep failed")
		return
	}

	if expired > 0 {
		s.logger.WithContext(ctx).WithField("expired", expired).Info("overdue checkout intents expired")
	}
}
