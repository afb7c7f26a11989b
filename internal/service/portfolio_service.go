package service

import (
	"context"
	"errors"

	"stockledger/internal/auth"
	"stockledger/internal/model"
	"stockledger/internal/repository"
)

// PortfolioService 积分与持仓只读查询
type PortfolioService struct {
	store repository.Store
}

func NewPortfolioService(store repository.Store) *PortfolioService {
	return &PortfolioService{store: store}
}

// CurrentBalance 积分账户不存在视为 0
func (s *PortfolioService) CurrentBalance(ctx context.Context, memberID int64) (int64, error) {
	if err := s.authorize(ctx, memberID); err != nil {
		return 0, err
	}
	balance, err := s.store.Balance(ctx, memberID)
	if err != nil {
		if errors.Is(err, repository.ErrBalanceNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return balance.Points, nil
}

// CurrentHoldings 只返回 ACTIVE 持仓
func (s *PortfolioService) CurrentHoldings(ctx context.Context, memberID int64) ([]*model.Holding, error) {
	if err := s.authorize(ctx, memberID); err != nil {
		return nil, err
	}
	return s.store.ActiveHoldings(ctx, memberID)
}

// CurrentHolding 返回 (数量, 是否持有)，无 ACTIVE 持仓时为 (0, false)
func (s *PortfolioService) CurrentHolding(ctx context.Context, memberID, itemID int64) (int64, bool, error) {
	holdings, err := s.CurrentHoldings(ctx, memberID)
	if err != nil {
		return 0, false, err
	}
	for _, h := range holdings {
		if h.ItemID == itemID {
			return h.Quantity, true, nil
		}
	}
	return 0, false, nil
}

// Trade 按流水号查询本人的一笔成交，他人的流水同样视为不存在
func (s *PortfolioService) Trade(ctx context.Context, memberID int64, transactionNo string) (*model.TradeTransaction, error) {
	if err := s.authorize(ctx, memberID); err != nil {
		return nil, err
	}
	record, err := s.store.TransactionByNo(ctx, transactionNo)
	if err != nil {
		return nil, err
	}
	if record == nil || record.MemberID != memberID {
		return nil, &NotFoundError{Entity: "transaction", Key: transactionNo}
	}
	return record, nil
}

func (s *PortfolioService) authorize(ctx context.Context, memberID int64) error {
	authed, ok := auth.MemberFromContext(ctx)
	if !ok || authed != memberID {
		return ErrUnauthorized
	}
	exists, err := s.store.MemberExists(ctx, memberID)
	if err != nil {
		return err
	}
	if !exists {
		return &NotFoundError{Entity: "member", ID: memberID}
	}
	return nil
}
