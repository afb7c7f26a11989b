package repository

import (
	"context"

	"stockledger/internal/model"

	"gorm.io/gorm"
)

// ============================================================================
// 存储抽象
// ============================================================================
//
// 交易引擎只通过 Store 访问三张账本（积分、持仓、成交流水）。
// Atomically 是唯一的提交边界：fn 返回 nil 则全部写入生效，
// 返回错误则全部回滚，任何中间状态都不可见。
//
// 实现：
//   GormStore   MySQL，数据库事务 + 行锁 + 乐观锁版本号
//   MemoryStore 进程内，原地写入 + 撤销日志，用于单机运行与测试
// ============================================================================

// Store 交易引擎依赖的存储
type Store interface {
	MemberExists(ctx context.Context, memberID int64) (bool, error)
	Atomically(ctx context.Context, fn func(tx Tx) error) error

	// 只读查询，不参与提交
	Balance(ctx context.Context, memberID int64) (*model.MemberBalance, error)
	ActiveHoldings(ctx context.Context, memberID int64) ([]*model.Holding, error)
	// TransactionByNo 不存在返回 nil, nil
	TransactionByNo(ctx context.Context, transactionNo string) (*model.TradeTransaction, error)
}

// Tx 一次提交内可用的读写操作
//
// 读操作返回 ErrBalanceNotFound / ErrHoldingNotFound 表示不存在；
// Update* 以传入对象的 Version 做比较交换，冲突返回 ErrOptimisticLock。
type Tx interface {
	Balance(ctx context.Context, memberID int64) (*model.MemberBalance, error)
	CreateBalance(ctx context.Context, balance *model.MemberBalance) error
	UpdateBalance(ctx context.Context, balance *model.MemberBalance) error

	ActiveHolding(ctx context.Context, memberID, itemID int64) (*model.Holding, error)
	CreateHolding(ctx context.Context, holding *model.Holding) error
	UpdateHolding(ctx context.Context, holding *model.Holding) error

	TransactionByRequestID(ctx context.Context, memberID int64, requestID string) (*model.TradeTransaction, error)
	AppendTransaction(ctx context.Context, trans *model.TradeTransaction) error

	EnqueueOutbox(ctx context.Context, msg *model.OutboxMessage) error
}

// ============================================================================
// GORM 实现
// ============================================================================

type GormStore struct {
	db              *gorm.DB
	memberRepo      *MemberRepository
	balanceRepo     *BalanceRepository
	holdingRepo     *HoldingRepository
	transactionRepo *TransactionRepository
	outboxRepo      *OutboxRepository
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{
		db:              db,
		memberRepo:      NewMemberRepository(db),
		balanceRepo:     NewBalanceRepository(db),
		holdingRepo:     NewHoldingRepository(db),
		transactionRepo: NewTransactionRepository(db),
		outboxRepo:      NewOutboxRepository(db),
	}
}

func (s *GormStore) MemberExists(ctx context.Context, memberID int64) (bool, error) {
	return s.memberRepo.Exists(ctx, memberID)
}

func (s *GormStore) Balance(ctx context.Context, memberID int64) (*model.MemberBalance, error) {
	return s.balanceRepo.GetByMemberID(ctx, memberID)
}

func (s *GormStore) ActiveHoldings(ctx context.Context, memberID int64) ([]*model.Holding, error) {
	return s.holdingRepo.ListActiveByMemberID(ctx, memberID)
}

func (s *GormStore) TransactionByNo(ctx context.Context, transactionNo string) (*model.TradeTransaction, error) {
	return s.transactionRepo.GetByTransactionNo(ctx, transactionNo)
}

// Outbox 供消息投递任务使用
func (s *GormStore) Outbox() *OutboxRepository {
	return s.outboxRepo
}

func (s *GormStore) Atomically(ctx context.Context, fn func(tx Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{tx: tx, store: s})
	})
}

type gormTx struct {
	tx    *gorm.DB
	store *GormStore
}

func (t *gormTx) Balance(ctx context.Context, memberID int64) (*model.MemberBalance, error) {
	return t.store.balanceRepo.GetByMemberIDForUpdate(ctx, t.tx, memberID)
}

func (t *gormTx) CreateBalance(ctx context.Context, balance *model.MemberBalance) error {
	return t.store.balanceRepo.Create(ctx, t.tx, balance)
}

func (t *gormTx) UpdateBalance(ctx context.Context, balance *model.MemberBalance) error {
	return t.store.balanceRepo.UpdatePoints(ctx, t.tx, balance)
}

func (t *gormTx) ActiveHolding(ctx context.Context, memberID, itemID int64) (*model.Holding, error) {
	return t.store.holdingRepo.GetActiveForUpdate(ctx, t.tx, memberID, itemID)
}

func (t *gormTx) CreateHolding(ctx context.Context, holding *model.Holding) error {
	return t.store.holdingRepo.Create(ctx, t.tx, holding)
}

func (t *gormTx) UpdateHolding(ctx context.Context, holding *model.Holding) error {
	return t.store.holdingRepo.Update(ctx, t.tx, holding)
}

func (t *gormTx) TransactionByRequestID(ctx context.Context, memberID int64, requestID string) (*model.TradeTransaction, error) {
	return t.store.transactionRepo.GetByRequestID(ctx, t.tx, memberID, requestID)
}

func (t *gormTx) AppendTransaction(ctx context.Context, trans *model.TradeTransaction) error {
	return t.store.transactionRepo.Create(ctx, t.tx, trans)
}

func (t *gormTx) EnqueueOutbox(ctx context.Context, msg *model.OutboxMessage) error {
	return t.store.outboxRepo.Create(ctx, t.tx, msg)
}
