package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/bespoken/bespoken-backend/internal/logger"
	"github.com/bespoken/bespoken-backend/internal/types"
)

// TurnRepo is the Turn Log: an append-only store of learner turns. There is
// deliberately no update or delete surface.
type TurnRepo interface {
	Create(ctx context.Context, tx *gorm.DB, turn *types.Turn) (*types.Turn, error)
	// GetPriorTurns returns turns for (userID, scenarioID) with
	// turn_index < beforeIndex, newest first, limited to limit.
	GetPriorTurns(ctx context.Context, tx *gorm.DB, userID, scenarioID string, beforeIndex, limit int) ([]*types.Turn, error)
	GetByUserAndScenario(ctx context.Context, tx *gorm.DB, userID, scenarioID string) ([]*types.Turn, error)
}

type turnRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTurnRepo(db *gorm.DB, baseLog *logger.Logger) TurnRepo {
	repoLog := baseLog.With("repo", "TurnRepo")
	return &turnRepo{db: db, log: repoLog}
}

func (r *turnRepo) Create(ctx context.Context, tx *gorm.DB, turn *types.Turn) (*types.Turn, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if err := transaction.WithContext(ctx).Create(turn).Error; err != nil {
		return nil, err
	}
	return turn, nil
}

func (r *turnRepo) GetPriorTurns(ctx context.Context, tx *gorm.DB, userID, scenarioID string, beforeIndex, limit int) ([]*types.Turn, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Turn
	if userID == "" || scenarioID == "" || limit <= 0 {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("user_id = ? AND scenario_id = ? AND turn_index < ?", userID, scenarioID, beforeIndex).
		Order("turn_index DESC").
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *turnRepo) GetByUserAndScenario(ctx context.Context, tx *gorm.DB, userID, scenarioID string) ([]*types.Turn, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Turn
	if userID == "" || scenarioID == "" {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("user_id = ? AND scenario_id = ?", userID, scenarioID).
		Order("turn_index ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
