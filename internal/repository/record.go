package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/postflow/engage/internal/entities"
)

// RecordRepository stores per-(event, rule) engagement audit records.
type RecordRepository interface {
	CreateRecord(ctx context.Context, record *entities.EngagementRecord) error
	ListRecords(ctx context.Context, filter RecordFilter) ([]entities.EngagementRecord, int64, error)
	DeleteRecordsBefore(ctx context.Context, before time.Time) (int64, error)
}

// RecordFilter controls engagement record listing queries.
type RecordFilter struct {
	RuleID  uint
	Outcome entities.Outcome
	Limit   int
	Offset  int
}

// recordRepository implements RecordRepository.
type recordRepository struct {
	db *gorm.DB
}

// NewRecordRepository creates a new RecordRepository.
func NewRecordRepository(db *gorm.DB) RecordRepository {
	return &recordRepository{db: db}
}

// CreateRecord saves an engagement record.
func (r *recordRepository) CreateRecord(ctx context.Context, record *entities.EngagementRecord) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to create engagement record: %w", err)
	}
	return nil
}

// ListRecords returns engagement records matching the filter with pagination.
func (r *recordRepository) ListRecords(ctx context.Context, filter RecordFilter) ([]entities.EngagementRecord, int64, error) {
	var records []entities.EngagementRecord
	var total int64

	countQuery := r.db.WithContext(ctx).Model(&entities.EngagementRecord{})
	countQuery = applyRecordFilter(countQuery, filter)
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count engagement records: %w", err)
	}

	query := r.db.WithContext(ctx).Order("created_at DESC")
	query = applyRecordFilter(query, filter)
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list engagement records: %w", err)
	}
	return records, total, nil
}

func applyRecordFilter(query *gorm.DB, filter RecordFilter) *gorm.DB {
	if filter.RuleID > 0 {
		query = query.Where("rule_id = ?", filter.RuleID)
	}
	if filter.Outcome != "" {
		query = query.Where("outcome = ?", filter.Outcome)
	}
	return query
}

// DeleteRecordsBefore deletes engagement records older than the given time.
func (r *recordRepository) DeleteRecordsBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("created_at < ?", before).Delete(&entities.EngagementRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete engagement records before %v: %w", before, result.Error)
	}
	return result.RowsAffected, nil
}
