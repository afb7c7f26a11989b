package repository

import (
	"context"
	"errors"

	"stockledger/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrBalanceNotFound = errors.New("积分账户不存在")
	ErrBalanceNegative = errors.New("积分不能为负")
	ErrOptimisticLock  = errors.New("乐观锁冲突，请重试")
)

type BalanceRepository struct {
	db *gorm.DB
}

func NewBalanceRepository(db *gorm.DB) *BalanceRepository {
	return &BalanceRepository{db: db}
}

func (r *BalanceRepository) Create(ctx context.Context, tx *gorm.DB, balance *model.MemberBalance) error {
	if tx == nil {
		tx = r.db
	}
	if balance.Points < 0 {
		return ErrBalanceNegative
	}
	return tx.WithContext(ctx).Create(balance).Error
}

func (r *BalanceRepository) GetByMemberID(ctx context.Context, memberID int64) (*model.MemberBalance, error) {
	var balance model.MemberBalance
	err := r.db.WithContext(ctx).Where("member_id = ?", memberID).First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBalanceNotFound
		}
		return nil, err
	}
	return &balance, nil
}

// GetByMemberIDForUpdate 事务内加行锁读取
func (r *BalanceRepository) GetByMemberIDForUpdate(ctx context.Context, tx *gorm.DB, memberID int64) (*model.MemberBalance, error) {
	var balance model.MemberBalance
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("member_id = ?", memberID).
		First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBalanceNotFound
		}
		return nil, err
	}
	return &balance, nil
}

// UpdatePoints 写入新积分（乐观锁）
//
// balance.Version 是读取时的版本号，更新成功后自增
func (r *BalanceRepository) UpdatePoints(ctx context.Context, tx *gorm.DB, balance *model.MemberBalance) error {
	if tx == nil {
		tx = r.db
	}
	if balance.Points < 0 {
		return ErrBalanceNegative
	}

	result := tx.WithContext(ctx).
		Model(&model.MemberBalance{}).
		Where("member_id = ? AND version = ?", balance.MemberID, balance.Version).
		Updates(map[string]interface{}{
			"points":  balance.Points,
			"version": gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrOptimisticLock
	}

	balance.Version++
	return nil
}
