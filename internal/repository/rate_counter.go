package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/postflow/engage/internal/entities"
)

// RateCounterRepository persists per-rule rate counter snapshots. All writes
// come from the serialized per-rule reservation path, so the repository
// itself needs no locking beyond the upsert.
type RateCounterRepository interface {
	GetCounter(ctx context.Context, ruleID uint) (*entities.RateCounter, error)
	SaveCounter(ctx context.Context, counter *entities.RateCounter) error
}

// rateCounterRepository implements RateCounterRepository.
type rateCounterRepository struct {
	db *gorm.DB
}

// NewRateCounterRepository creates a new RateCounterRepository.
func NewRateCounterRepository(db *gorm.DB) RateCounterRepository {
	return &rateCounterRepository{db: db}
}

// GetCounter returns the persisted counter for a rule.
// Returns ErrCounterNotFound if the rule has never reserved a slot.
func (r *rateCounterRepository) GetCounter(ctx context.Context, ruleID uint) (*entities.RateCounter, error) {
	var counter entities.RateCounter
	if err := r.db.WithContext(ctx).First(&counter, "rule_id = ?", ruleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCounterNotFound
		}
		return nil, fmt.Errorf("failed to get rate counter for rule %d: %w", ruleID, err)
	}
	return &counter, nil
}

// SaveCounter upserts the counter snapshot for a rule.
func (r *rateCounterRepository) SaveCounter(ctx context.Context, counter *entities.RateCounter) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "rule_id"}},
			UpdateAll: true,
		}).
		Create(counter).Error
	if err != nil {
		return fmt.Errorf("failed to save rate counter for rule %d: %w", counter.RuleID, err)
	}
	return nil
}
