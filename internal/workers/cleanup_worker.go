package workers

import (
	"context"
	"time"

	"courierdesk_backend/internal/logger"
	"courierdesk_backend/internal/repositories"
)

// CleanupWorker периодически вычищает истекшие одноразовые коды.
// Истекший код и так не проходит проверку, воркер лишь не дает
// таблице расти.
type CleanupWorker struct {
	codeRepo repositories.VerificationCodeRepository
	interval time.Duration
}

func NewCleanupWorker(codeRepo repositories.VerificationCodeRepository, interval time.Duration) *CleanupWorker {
	if interval <= 0 {
		interval = 1 * time.Hour
	}
	return &CleanupWorker{codeRepo: codeRepo, interval: interval}
}

// Start запускает фоновую очистку
func (w *CleanupWorker) Start(ctx context.Context) {
	go w.purgeExpiredCodes(ctx)
}

func (w *CleanupWorker) purgeExpiredCodes(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Cleanup worker stopped")
			return
		case <-ticker.C:
			deleted, err := w.codeRepo.PurgeExpired(ctx)
			if err != nil {
				logger.WorkerLog("cleanup", "purge expired verification codes", err)
				continue
			}
			if deleted > 0 {
				logger.Info("Purged expired verification codes", "count", deleted)
			}
		}
	}
}
