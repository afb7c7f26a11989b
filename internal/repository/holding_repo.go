package repository

import (
	"context"
	"errors"

	"stockledger/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrHoldingNotFound = errors.New("持仓不存在")
	ErrHoldingNegative = errors.New("持仓数量不能为负")
)

type HoldingRepository struct {
	db *gorm.DB
}

func NewHoldingRepository(db *gorm.DB) *HoldingRepository {
	return &HoldingRepository{db: db}
}

func (r *HoldingRepository) Create(ctx context.Context, tx *gorm.DB, holding *model.Holding) error {
	if tx == nil {
		tx = r.db
	}
	if holding.Quantity < 0 {
		return ErrHoldingNegative
	}
	return tx.WithContext(ctx).Create(holding).Error
}

// GetActiveForUpdate 事务内加行锁读取当前 ACTIVE 持仓
func (r *HoldingRepository) GetActiveForUpdate(ctx context.Context, tx *gorm.DB, memberID, itemID int64) (*model.Holding, error) {
	var holding model.Holding
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("member_id = ? AND item_id = ? AND status = ?", memberID, itemID, model.HoldingStatusActive).
		First(&holding).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHoldingNotFound
		}
		return nil, err
	}
	return &holding, nil
}

func (r *HoldingRepository) ListActiveByMemberID(ctx context.Context, memberID int64) ([]*model.Holding, error) {
	var holdings []*model.Holding
	err := r.db.WithContext(ctx).
		Where("member_id = ? AND status = ?", memberID, model.HoldingStatusActive).
		Order("item_id ASC").
		Find(&holdings).Error
	return holdings, err
}

// Update 写入新的数量与生命周期状态（乐观锁）
func (r *HoldingRepository) Update(ctx context.Context, tx *gorm.DB, holding *model.Holding) error {
	if tx == nil {
		tx = r.db
	}
	if holding.Quantity < 0 {
		return ErrHoldingNegative
	}

	result := tx.WithContext(ctx).
		Model(&model.Holding{}).
		Where("id = ? AND version = ?", holding.ID, holding.Version).
		Updates(map[string]interface{}{
			"quantity":   holding.Quantity,
			"status":     holding.Status,
			"active_key": holding.ActiveKey,
			"removed_at": holding.RemovedAt,
			"version":    gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrOptimisticLock
	}

	holding.Version++
	return nil
}
