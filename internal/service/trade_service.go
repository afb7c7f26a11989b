package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"stockledger/internal/infrastructure/metrics"
	"stockledger/internal/model"
	"stockledger/internal/repository"

	"github.com/sirupsen/logrus"
)

// ============================================================================
// 交易引擎
// ============================================================================
//
// 一次成交：
//   1. 校验（无副作用）
//   2. 获取会员锁，同一会员的成交串行执行
//   3. 在一个存储事务内：幂等检查 -> 读余额/持仓 -> 业务校验 -> 写流水、持仓、积分、消息
//   4. 释放锁
//
// 第 2~3 步整体受 commitTimeout 约束，超时不产生任何写入。
// ============================================================================

// Catalog 商品目录查询
type Catalog interface {
	ItemExists(ctx context.Context, itemID int64) (bool, error)
}

// MemberLocker 会员级互斥，unlock 必须调用且可重复调用
type MemberLocker interface {
	LockMember(ctx context.Context, memberID int64) (unlock func(), err error)
}

// IDGenerator 成交流水主键与流水号
type IDGenerator interface {
	NextTransaction() (id int64, transactionNo string, err error)
}

type TradeOptions struct {
	CommitTimeout time.Duration
	EventTopic    string
}

type TradeService struct {
	store   repository.Store
	catalog Catalog
	locker  MemberLocker
	ids     IDGenerator
	metrics *metrics.Metrics
	log     logrus.FieldLogger
	opts    TradeOptions
	now     func() time.Time
}

func NewTradeService(
	store repository.Store,
	catalog Catalog,
	locker MemberLocker,
	ids IDGenerator,
	m *metrics.Metrics,
	log logrus.FieldLogger,
	opts TradeOptions,
) *TradeService {
	return &TradeService{
		store:   store,
		catalog: catalog,
		locker:  locker,
		ids:     ids,
		metrics: m,
		log:     log,
		opts:    opts,
		now:     time.Now,
	}
}

// tradeEvent trade.executed 消息体
type tradeEvent struct {
	TransactionNo string    `json:"transaction_no"`
	MemberID      int64     `json:"member_id"`
	ItemID        int64     `json:"item_id"`
	Kind          string    `json:"kind"`
	Quantity      int64     `json:"quantity"`
	TotalPrice    string    `json:"total_price"`
	BalanceAfter  int64     `json:"balance_after"`
	HoldingAfter  int64     `json:"holding_after"`
	ExecutedAt    time.Time `json:"executed_at"`
}

// Execute 执行一笔买入或卖出，返回已提交的成交流水
//
// 带 RequestID 的请求若已成交过，直接返回当时的流水，不会重复记账。
func (s *TradeService) Execute(ctx context.Context, actorID int64, req TradeRequest) (*model.TradeTransaction, error) {
	trade, err := s.validate(ctx, actorID, req)
	if err != nil {
		s.reject(actorID, req.Kind, err)
		return nil, err
	}

	start := time.Now()
	record, replayed, err := s.executeLocked(ctx, trade)
	s.metrics.ObserveCommit(string(trade.kind), time.Since(start))
	if err != nil {
		s.reject(actorID, req.Kind, err)
		return nil, err
	}

	logger := s.log.WithFields(logrus.Fields{
		"transaction_no": record.TransactionNo,
		"member_id":      record.MemberID,
		"item_id":        record.ItemID,
		"kind":           record.Kind,
		"quantity":       record.Quantity,
		"total_price":    record.TotalPrice.String(),
		"balance_after":  record.BalanceAfter,
	})
	if replayed {
		s.metrics.RecordTrade(string(trade.kind), "replayed")
		logger.Info("重复请求，返回已有成交")
		return record, nil
	}
	s.metrics.RecordTrade(string(trade.kind), "ok")
	logger.Info("成交成功")
	return record, nil
}

func (s *TradeService) executeLocked(ctx context.Context, trade *validatedTrade) (*model.TradeTransaction, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.CommitTimeout)
	defer cancel()

	unlock, err := s.locker.LockMember(ctx, trade.memberID)
	if err != nil {
		return nil, false, &CommitError{Op: "lock", Err: err}
	}
	defer unlock()

	var (
		record   *model.TradeTransaction
		replayed bool
	)
	err = s.store.Atomically(ctx, func(tx repository.Tx) error {
		if trade.requestID != nil {
			existing, err := tx.TransactionByRequestID(ctx, trade.memberID, *trade.requestID)
			if err != nil {
				return err
			}
			if existing != nil {
				if !trade.matches(existing) {
					return &ValidationError{Field: "request_id", Reason: "已用于另一笔不同的成交"}
				}
				record, replayed = existing, true
				return nil
			}
		}

		var err error
		record, err = s.apply(ctx, tx, trade)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientFunds) || errors.Is(err, ErrInsufficientHoldings) {
			return nil, false, err
		}
		var ve *ValidationError
		if errors.As(err, &ve) {
			return nil, false, err
		}
		return nil, false, &CommitError{Op: "commit", Err: err}
	}
	return record, replayed, nil
}

// apply 在事务内完成业务校验与全部写入，返回错误即整体回滚
func (s *TradeService) apply(ctx context.Context, tx repository.Tx, trade *validatedTrade) (*model.TradeTransaction, error) {
	balance, err := tx.Balance(ctx, trade.memberID)
	if err != nil && !errors.Is(err, repository.ErrBalanceNotFound) {
		return nil, fmt.Errorf("读取积分失败: %w", err)
	}
	var before int64
	if balance != nil {
		before = balance.Points
	}

	holding, err := tx.ActiveHolding(ctx, trade.memberID, trade.itemID)
	if err != nil && !errors.Is(err, repository.ErrHoldingNotFound) {
		return nil, fmt.Errorf("读取持仓失败: %w", err)
	}
	if err != nil {
		holding = nil
	}

	now := s.now()
	var after int64

	switch trade.kind {
	case model.TradeKindBuy:
		if before < trade.points {
			return nil, ErrInsufficientFunds
		}
		after = before - trade.points

		if holding == nil {
			holding = model.NewActiveHolding(trade.memberID, trade.itemID, trade.quantity)
			if err := tx.CreateHolding(ctx, holding); err != nil {
				return nil, fmt.Errorf("创建持仓失败: %w", err)
			}
		} else {
			if holding.Quantity > math.MaxInt64-trade.quantity {
				return nil, &ValidationError{Field: "quantity", Reason: "持仓数量溢出"}
			}
			holding.Quantity += trade.quantity
			if err := tx.UpdateHolding(ctx, holding); err != nil {
				return nil, fmt.Errorf("更新持仓失败: %w", err)
			}
		}

	case model.TradeKindSell:
		if holding == nil || holding.Quantity < trade.quantity {
			return nil, ErrInsufficientHoldings
		}
		if before > math.MaxInt64-trade.points {
			return nil, &ValidationError{Field: "total_price", Reason: "积分溢出"}
		}
		after = before + trade.points

		holding.Quantity -= trade.quantity
		if holding.Quantity == 0 {
			if err := holding.MarkRemoved(now); err != nil {
				return nil, err
			}
		}
		if err := tx.UpdateHolding(ctx, holding); err != nil {
			return nil, fmt.Errorf("更新持仓失败: %w", err)
		}

	default:
		return nil, fmt.Errorf("未知成交方向: %s", trade.kind)
	}

	if balance == nil {
		balance = &model.MemberBalance{MemberID: trade.memberID, Points: after}
		if err := tx.CreateBalance(ctx, balance); err != nil {
			return nil, fmt.Errorf("创建积分账户失败: %w", err)
		}
	} else {
		balance.Points = after
		if err := tx.UpdateBalance(ctx, balance); err != nil {
			return nil, fmt.Errorf("更新积分失败: %w", err)
		}
	}

	id, transactionNo, err := s.ids.NextTransaction()
	if err != nil {
		return nil, fmt.Errorf("生成流水号失败: %w", err)
	}
	record := &model.TradeTransaction{
		ID:            id,
		TransactionNo: transactionNo,
		RequestID:     trade.requestID,
		MemberID:      trade.memberID,
		ItemID:        trade.itemID,
		Kind:          trade.kind,
		Quantity:      trade.quantity,
		UnitPrice:     trade.unitPrice,
		Fee:           trade.fee,
		TotalPrice:    trade.total,
		BalanceBefore: before,
		BalanceAfter:  after,
		CreatedAt:     now,
	}
	if err := tx.AppendTransaction(ctx, record); err != nil {
		return nil, fmt.Errorf("记录流水失败: %w", err)
	}

	payload, err := json.Marshal(tradeEvent{
		TransactionNo: record.TransactionNo,
		MemberID:      record.MemberID,
		ItemID:        record.ItemID,
		Kind:          string(record.Kind),
		Quantity:      record.Quantity,
		TotalPrice:    record.TotalPrice.String(),
		BalanceAfter:  after,
		HoldingAfter:  holding.Quantity,
		ExecutedAt:    now,
	})
	if err != nil {
		return nil, fmt.Errorf("序列化消息失败: %w", err)
	}
	msg := &model.OutboxMessage{
		EventType:  model.EventTradeExecuted,
		MessageKey: record.TransactionNo,
		MemberID:   record.MemberID,
		Topic:      s.opts.EventTopic,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	}
	if err := tx.EnqueueOutbox(ctx, msg); err != nil {
		return nil, fmt.Errorf("写入消息失败: %w", err)
	}

	return record, nil
}

func (s *TradeService) reject(actorID int64, kind string, err error) {
	result := errorResult(err)
	if _, ok := model.ParseTradeKind(kind); !ok {
		kind = "unknown"
	}
	s.metrics.RecordTrade(kind, result)

	logger := s.log.WithFields(logrus.Fields{
		"member_id": actorID,
		"kind":      kind,
		"result":    result,
	}).WithError(err)
	if IsRetryable(err) {
		logger.Error("成交提交失败")
		return
	}
	logger.Warn("成交被拒绝")
}
