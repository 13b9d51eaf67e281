package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/artisan-market-backend/internal/logger"
	"github.com/ignatzorin/artisan-market-backend/internal/pkg/apperror"
)

const sweepBatchSize = 100

// expiredLister отдаёт треды с истёкшим сроком ответа.
type expiredLister interface {
	ListExpired(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}

// ExpirationSweeper — фоновый процесс, закрывающий просроченные торги.
// Просрочка идёт тем же путём, что и ответ человека, поэтому гонку
// «человек против дедлайна» разрешает оптимистическая блокировка журнала:
// проигравшая сторона получает конфликт, и это штатная ситуация.
type ExpirationSweeper struct {
	threads  expiredLister
	service  *NegotiationService
	interval time.Duration
}

// NewExpirationSweeper создаёт sweeper.
func NewExpirationSweeper(threads expiredLister, service *NegotiationService, interval time.Duration) *ExpirationSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ExpirationSweeper{
		threads:  threads,
		service:  service,
		interval: interval,
	}
}

// Run крутит цикл до отмены контекста.
func (s *ExpirationSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce обрабатывает один батч просроченных тредов. Повторный проход по
// уже закрытому треду безвреден: общий путь вернёт конфликт или stale.
func (s *ExpirationSweeper) SweepOnce(ctx context.Context) (expired int) {
	ids, err := s.threads.ListExpired(ctx, time.Now(), sweepBatchSize)
	if err != nil {
		if logger.Log != nil {
			logger.Log.WithField("error", err.Error()).Error("Sweeper: не удалось получить просроченные торги")
		}
		return 0
	}

	for _, id := range ids {
		if _, err := s.service.ExpireThread(ctx, id); err != nil {
			// Конфликт или уже закрытый тред — проигранная гонка с живым
			// ответом, не ошибка sweeper'а.
			if errors.Is(err, apperror.ErrStaleNegotiation) || errors.Is(err, apperror.ErrSequenceConflict) || apperror.IsInvalidTransition(err) {
				continue
			}
			if logger.Log != nil {
				logger.Log.WithFields(logrus.Fields{
					"thread_id": id,
					"error":     err.Error(),
				}).Error("Sweeper: не удалось закрыть просроченный торг")
			}
			continue
		}
		expired++
	}

	if expired > 0 && logger.Log != nil {
		logger.Log.WithField("count", expired).Info("Sweeper: просроченные торги закрыты")
	}
	return expired
}
