package repository

import (
	"context"
	"errors"
	"time"

	"commons/internal/models"

	"gorm.io/gorm"
)

// ReportRepository defines the interface for user report store operations.
// Reports move from pending to exactly one of resolved or dismissed and never
// transition again.
type ReportRepository interface {
	Create(ctx context.Context, report *models.Report) error
	GetByID(ctx context.Context, id uint) (*models.Report, error)
	ListByStatus(ctx context.Context, status string, limit, offset int) ([]*models.Report, error)
	Settle(ctx context.Context, id, adminID uint, status, notes string) (*models.Report, error)
}

type reportRepository struct {
	db *gorm.DB
}

// NewReportRepository creates a new report repository.
func NewReportRepository(db *gorm.DB) ReportRepository {
	return &reportRepository{db: db}
}

func (r *reportRepository) Create(ctx context.Context, report *models.Report) error {
	report.Status = models.ReportStatusPending
	return r.db.WithContext(ctx).Create(report).Error
}

func (r *reportRepository) GetByID(ctx context.Context, id uint) (*models.Report, error) {
	var report models.Report
	err := r.db.WithContext(ctx).First(&report, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Report", id)
		}
		return nil, err
	}
	return &report, nil
}

func (r *reportRepository) ListByStatus(ctx context.Context, status string, limit, offset int) ([]*models.Report, error) {
	var reports []*models.Report
	q := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Offset(offset)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Find(&reports).Error
	return reports, err
}

// Settle moves a pending report to resolved or dismissed. The status guard in
// the update predicate makes settling a settled report a conflict rather than
// a silent overwrite.
func (r *reportRepository) Settle(ctx context.Context, id, adminID uint, status, notes string) (*models.Report, error) {
	if status != models.ReportStatusResolved && status != models.ReportStatusDismissed {
		return nil, models.NewValidationError("Invalid report status")
	}
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&models.Report{}).
		Where("id = ? AND status = ?", id, models.ReportStatusPending).
		Updates(map[string]interface{}{
			"status":      status,
			"resolved_at": now,
			"resolved_by": adminID,
			"notes":       notes,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// Distinguish missing from already settled.
		report, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if report.Status != models.ReportStatusPending {
			return nil, models.NewConflictError("Report has already been settled")
		}
		return nil, models.NewInternalError(errors.New("report settle affected no rows"))
	}
	return r.GetByID(ctx, id)
}
