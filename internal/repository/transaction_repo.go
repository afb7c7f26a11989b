package repository

import (
	"context"
	"errors"

	"stockledger/internal/model"

	"gorm.io/gorm"
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *gorm.DB, trans *model.TradeTransaction) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(trans).Error
}

func (r *TransactionRepository) GetByTransactionNo(ctx context.Context, transactionNo string) (*model.TradeTransaction, error) {
	var trans model.TradeTransaction
	err := r.db.WithContext(ctx).Where("transaction_no = ?", transactionNo).First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &trans, nil
}

// GetByRequestID 按幂等键查找已提交的成交，不存在返回 nil, nil
func (r *TransactionRepository) GetByRequestID(ctx context.Context, tx *gorm.DB, memberID int64, requestID string) (*model.TradeTransaction, error) {
	if tx == nil {
		tx = r.db
	}
	var trans model.TradeTransaction
	err := tx.WithContext(ctx).
		Where("member_id = ? AND request_id = ?", memberID, requestID).
		First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &trans, nil
}
