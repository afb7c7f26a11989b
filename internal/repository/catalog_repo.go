package repository

import (
	"context"

	"stockledger/internal/model"

	"gorm.io/gorm"
)

// MemberRepository 会员表只读访问
type MemberRepository struct {
	db *gorm.DB
}

func NewMemberRepository(db *gorm.DB) *MemberRepository {
	return &MemberRepository{db: db}
}

func (r *MemberRepository) Exists(ctx context.Context, memberID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Member{}).Where("id = ?", memberID).Count(&count).Error
	return count > 0, err
}

// ItemRepository 品种目录只读访问
type ItemRepository struct {
	db *gorm.DB
}

func NewItemRepository(db *gorm.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

func (r *ItemRepository) ItemExists(ctx context.Context, itemID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.StockItem{}).Where("id = ?", itemID).Count(&count).Error
	return count > 0, err
}
