package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// OrphanReport 描述一個沒有對應紀錄、但可能仍存在外部儲存的物件
type OrphanReport struct {
	Ref       string
	ProductID string
	Reason    string
	At        time.Time
}

func (m *Manager) reportOrphans(ctx context.Context, productID uuid.UUID, refs []string, reason string) {
	for _, ref := range refs {
		m.reportOrphan(ctx, productID, ref, reason)
	}
}

func (m *Manager) reportOrphan(ctx context.Context, productID uuid.UUID, ref, reason string) {
	m.metrics.orphan()
	report := OrphanReport{
		Ref:       ref,
		ProductID: productID.String(),
		Reason:    reason,
		At:        time.Now(),
	}
	if m.reporter == nil {
		m.logger.WarnContext(ctx, "Orphan object left in store", slog.String("ref", ref), slog.String("reason", reason))
		return
	}
	if err := m.reporter.Publish(report); err != nil {
		m.logger.ErrorContext(ctx, "Fail to report orphan object", slog.String("ref", ref), slog.Any("error", err))
	}
}

// Reconcile 處理一個可能的孤兒物件：仍被圖片紀錄引用就保留，否則刪除
func (m *Manager) Reconcile(ctx context.Context, ref string) (DeleteOutcome, error) {
	const op = "Manager.Reconcile"
	logger := m.logger.With(slog.String("op", op), slog.String("ref", ref))
	referenced, err := m.images.ExistsByRef(ctx, ref)
	if err != nil {
		return DeleteFailed, fmt.Errorf("[%s] Fail to check image reference, err=%w", op, err)
	}
	if referenced {
		logger.Info("Object is still referenced, keep it")
		return DeleteSkipped, nil
	}
	outcome, err := m.objects.Delete(ctx, ref)
	m.metrics.objectDelete(outcome)
	if err != nil {
		return outcome, &StoreError{Op: "delete", Ref: ref, Err: err}
	}
	logger.Info("Orphan object reconciled", slog.String("outcome", outcome.String()))
	return outcome, nil
}
