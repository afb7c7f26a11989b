package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"stockledger/internal/model"
)

var ErrDuplicateKey = errors.New("唯一键冲突")

// MemoryStore 进程内存储
//
// Atomically 持有全局写锁，fn 直接修改状态并记录撤销日志；
// fn 返回错误或 ctx 已结束时按逆序撤销，因此提交要么全部生效要么全部丢弃。
// 单次提交只触碰本次写入的行，开销与历史流水条数无关。
type MemoryStore struct {
	mu      sync.RWMutex
	members map[int64]struct{}
	items   map[int64]struct{}
	state   *memoryState
	now     func() time.Time
}

type memoryState struct {
	// member_id -> balance
	balances map[int64]model.MemberBalance
	// id -> holding
	holdings map[int64]model.Holding
	// member:item -> ACTIVE 持仓 id
	activeHoldings map[string]int64
	// member_id -> 持仓 id，按创建顺序
	memberHoldings map[int64][]int64

	transactions   []model.TradeTransaction
	transactionIDs map[int64]struct{}
	// transaction_no -> transactions 下标
	transactionNos map[string]int
	// member|request_id -> transactions 下标
	requestIndex map[string]int
	// member_id -> transactions 下标
	memberTrades map[int64][]int

	outbox map[int64]model.OutboxMessage

	nextBalanceID int64
	nextHoldingID int64
	nextOutboxID  int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		members: make(map[int64]struct{}),
		items:   make(map[int64]struct{}),
		state: &memoryState{
			balances:       make(map[int64]model.MemberBalance),
			holdings:       make(map[int64]model.Holding),
			activeHoldings: make(map[string]int64),
			memberHoldings: make(map[int64][]int64),
			transactionIDs: make(map[int64]struct{}),
			transactionNos: make(map[string]int),
			requestIndex:   make(map[string]int),
			memberTrades:   make(map[int64][]int),
			outbox:         make(map[int64]model.OutboxMessage),
		},
		now: time.Now,
	}
}

// ============================================================================
// 初始化数据（启动种子数据、测试）
// ============================================================================

func (s *MemoryStore) AddMembers(memberIDs ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range memberIDs {
		s.members[id] = struct{}{}
	}
}

func (s *MemoryStore) AddItems(itemIDs ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range itemIDs {
		s.items[id] = struct{}{}
	}
}

// SeedBalance 直接设置积分，绕过交易引擎
func (s *MemoryStore) SeedBalance(memberID, points int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.state.balances[memberID]
	if !ok {
		s.state.nextBalanceID++
		b = model.MemberBalance{ID: s.state.nextBalanceID, MemberID: memberID, CreatedAt: s.now()}
	}
	b.Points = points
	b.UpdatedAt = s.now()
	s.state.balances[memberID] = b
}

// SeedHolding 直接创建一行 ACTIVE 持仓
func (s *MemoryStore) SeedHolding(memberID, itemID, quantity int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := model.NewActiveHolding(memberID, itemID, quantity)
	s.state.nextHoldingID++
	h.ID = s.state.nextHoldingID
	h.CreatedAt = s.now()
	h.UpdatedAt = h.CreatedAt
	s.state.holdings[h.ID] = *h
	s.state.activeHoldings[*h.ActiveKey] = h.ID
	s.state.memberHoldings[memberID] = append(s.state.memberHoldings[memberID], h.ID)
}

// Transactions 返回会员全部成交流水（按提交顺序）
func (s *MemoryStore) Transactions(memberID int64) []*model.TradeTransaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.TradeTransaction
	for _, idx := range s.state.memberTrades[memberID] {
		cp := s.state.transactions[idx]
		out = append(out, &cp)
	}
	return out
}

// TransactionCount 全部会员的成交流水条数
func (s *MemoryStore) TransactionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state.transactions)
}

// Holdings 返回会员全部持仓，包括 REMOVED
func (s *MemoryStore) Holdings(memberID int64) []*model.Holding {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.holdingsOf(memberID, false)
}

// ============================================================================
// Store
// ============================================================================

func (s *MemoryStore) MemberExists(ctx context.Context, memberID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.members[memberID]
	return ok, nil
}

// ItemExists 内存模式下的商品目录
func (s *MemoryStore) ItemExists(ctx context.Context, itemID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.items[itemID]
	return ok, nil
}

func (s *MemoryStore) Balance(ctx context.Context, memberID int64) (*model.MemberBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.state.balances[memberID]
	if !ok {
		return nil, ErrBalanceNotFound
	}
	return &b, nil
}

func (s *MemoryStore) ActiveHoldings(ctx context.Context, memberID int64) ([]*model.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.holdingsOf(memberID, true), nil
}

func (s *MemoryStore) TransactionByNo(ctx context.Context, transactionNo string) (*model.TradeTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.state.transactionNos[transactionNo]
	if !ok {
		return nil, nil
	}
	cp := s.state.transactions[idx]
	return &cp, nil
}

func (s *MemoryStore) Atomically(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memoryTx{state: s.state, now: s.now}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}

	// 超时后不再提交
	if err := ctx.Err(); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func (st *memoryState) holdingsOf(memberID int64, activeOnly bool) []*model.Holding {
	var out []*model.Holding
	for _, id := range st.memberHoldings[memberID] {
		h := st.holdings[id]
		if activeOnly && !h.IsActive() {
			continue
		}
		cp := h
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ItemID != out[j].ItemID {
			return out[i].ItemID < out[j].ItemID
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func requestKey(memberID int64, requestID string) string {
	return fmt.Sprintf("%d|%s", memberID, requestID)
}

// ============================================================================
// Tx
// ============================================================================

type memoryTx struct {
	state *memoryState
	now   func() time.Time
	undo  []func()
}

func (t *memoryTx) onRollback(fn func()) {
	t.undo = append(t.undo, fn)
}

func (t *memoryTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memoryTx) Balance(ctx context.Context, memberID int64) (*model.MemberBalance, error) {
	b, ok := t.state.balances[memberID]
	if !ok {
		return nil, ErrBalanceNotFound
	}
	return &b, nil
}

func (t *memoryTx) CreateBalance(ctx context.Context, balance *model.MemberBalance) error {
	if balance.Points < 0 {
		return ErrBalanceNegative
	}
	if _, ok := t.state.balances[balance.MemberID]; ok {
		return ErrDuplicateKey
	}
	st := t.state
	prevID := st.nextBalanceID
	st.nextBalanceID++
	balance.ID = st.nextBalanceID
	balance.CreatedAt = t.now()
	balance.UpdatedAt = balance.CreatedAt
	st.balances[balance.MemberID] = *balance

	memberID := balance.MemberID
	t.onRollback(func() {
		delete(st.balances, memberID)
		st.nextBalanceID = prevID
	})
	return nil
}

func (t *memoryTx) UpdateBalance(ctx context.Context, balance *model.MemberBalance) error {
	if balance.Points < 0 {
		return ErrBalanceNegative
	}
	st := t.state
	stored, ok := st.balances[balance.MemberID]
	if !ok || stored.Version != balance.Version {
		return ErrOptimisticLock
	}
	prev := stored
	stored.Points = balance.Points
	stored.Version++
	stored.UpdatedAt = t.now()
	st.balances[balance.MemberID] = stored
	balance.Version = stored.Version

	t.onRollback(func() { st.balances[prev.MemberID] = prev })
	return nil
}

func (t *memoryTx) ActiveHolding(ctx context.Context, memberID, itemID int64) (*model.Holding, error) {
	id, ok := t.state.activeHoldings[model.HoldingActiveKey(memberID, itemID)]
	if !ok {
		return nil, ErrHoldingNotFound
	}
	cp := t.state.holdings[id]
	return &cp, nil
}

func (t *memoryTx) CreateHolding(ctx context.Context, holding *model.Holding) error {
	if holding.Quantity < 0 {
		return ErrHoldingNegative
	}
	key := model.HoldingActiveKey(holding.MemberID, holding.ItemID)
	if _, ok := t.state.activeHoldings[key]; ok {
		return ErrDuplicateKey
	}
	st := t.state
	prevID := st.nextHoldingID
	st.nextHoldingID++
	holding.ID = st.nextHoldingID
	holding.CreatedAt = t.now()
	holding.UpdatedAt = holding.CreatedAt
	st.holdings[holding.ID] = *holding
	if holding.IsActive() {
		st.activeHoldings[key] = holding.ID
	}
	prevList := st.memberHoldings[holding.MemberID]
	st.memberHoldings[holding.MemberID] = append(prevList, holding.ID)

	id, memberID, active := holding.ID, holding.MemberID, holding.IsActive()
	t.onRollback(func() {
		delete(st.holdings, id)
		if active {
			delete(st.activeHoldings, key)
		}
		if len(prevList) == 0 {
			delete(st.memberHoldings, memberID)
		} else {
			st.memberHoldings[memberID] = prevList
		}
		st.nextHoldingID = prevID
	})
	return nil
}

func (t *memoryTx) UpdateHolding(ctx context.Context, holding *model.Holding) error {
	if holding.Quantity < 0 {
		return ErrHoldingNegative
	}
	st := t.state
	stored, ok := st.holdings[holding.ID]
	if !ok || stored.Version != holding.Version {
		return ErrOptimisticLock
	}
	holding.Version++
	holding.UpdatedAt = t.now()
	st.holdings[holding.ID] = *holding

	key := model.HoldingActiveKey(stored.MemberID, stored.ItemID)
	wasActive, isActive := stored.IsActive(), holding.IsActive()
	if wasActive && !isActive {
		delete(st.activeHoldings, key)
	}

	prev := stored
	t.onRollback(func() {
		st.holdings[prev.ID] = prev
		if wasActive && !isActive {
			st.activeHoldings[key] = prev.ID
		}
	})
	return nil
}

func (t *memoryTx) TransactionByRequestID(ctx context.Context, memberID int64, requestID string) (*model.TradeTransaction, error) {
	idx, ok := t.state.requestIndex[requestKey(memberID, requestID)]
	if !ok {
		return nil, nil
	}
	cp := t.state.transactions[idx]
	return &cp, nil
}

func (t *memoryTx) AppendTransaction(ctx context.Context, trans *model.TradeTransaction) error {
	st := t.state
	if _, ok := st.transactionIDs[trans.ID]; ok {
		return ErrDuplicateKey
	}
	if _, ok := st.transactionNos[trans.TransactionNo]; ok {
		return ErrDuplicateKey
	}
	var reqKey string
	if trans.RequestID != nil {
		reqKey = requestKey(trans.MemberID, *trans.RequestID)
		if _, ok := st.requestIndex[reqKey]; ok {
			return ErrDuplicateKey
		}
	}

	idx := len(st.transactions)
	st.transactions = append(st.transactions, *trans)
	st.transactionIDs[trans.ID] = struct{}{}
	st.transactionNos[trans.TransactionNo] = idx
	if reqKey != "" {
		st.requestIndex[reqKey] = idx
	}
	prevTrades := st.memberTrades[trans.MemberID]
	st.memberTrades[trans.MemberID] = append(prevTrades, idx)

	id, no, memberID := trans.ID, trans.TransactionNo, trans.MemberID
	t.onRollback(func() {
		st.transactions = st.transactions[:idx]
		delete(st.transactionIDs, id)
		delete(st.transactionNos, no)
		if reqKey != "" {
			delete(st.requestIndex, reqKey)
		}
		if len(prevTrades) == 0 {
			delete(st.memberTrades, memberID)
		} else {
			st.memberTrades[memberID] = prevTrades
		}
	})
	return nil
}

func (t *memoryTx) EnqueueOutbox(ctx context.Context, msg *model.OutboxMessage) error {
	st := t.state
	prevID := st.nextOutboxID
	st.nextOutboxID++
	msg.ID = st.nextOutboxID
	if msg.Status == "" {
		msg.Status = model.OutboxStatusPending
	}
	msg.CreatedAt = t.now()
	msg.UpdatedAt = msg.CreatedAt
	st.outbox[msg.ID] = *msg

	id := msg.ID
	t.onRollback(func() {
		delete(st.outbox, id)
		st.nextOutboxID = prevID
	})
	return nil
}

// ============================================================================
// OutboxQueue
// ============================================================================

func (s *MemoryStore) GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.OutboxMessage
	for _, m := range s.state.outbox {
		if m.Status == model.OutboxStatusPending {
			cp := m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) MarkAsSent(ctx context.Context, id int64) error {
	return s.updateOutbox(id, func(m *model.OutboxMessage) { m.Status = model.OutboxStatusSent })
}

func (s *MemoryStore) IncrementRetryCount(ctx context.Context, id int64) error {
	return s.updateOutbox(id, func(m *model.OutboxMessage) { m.RetryCount++ })
}

func (s *MemoryStore) MarkAsFailed(ctx context.Context, id int64) error {
	return s.updateOutbox(id, func(m *model.OutboxMessage) { m.Status = model.OutboxStatusFailed })
}

func (s *MemoryStore) DeleteSentBefore(ctx context.Context, before time.Time, limit int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for id, m := range s.state.outbox {
		if m.Status == model.OutboxStatusSent && m.UpdatedAt.Before(before) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	for _, id := range ids {
		delete(s.state.outbox, id)
	}
	return int64(len(ids)), nil
}

// OutboxMessages 返回全部本地消息（测试用）
func (s *MemoryStore) OutboxMessages() []*model.OutboxMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.OutboxMessage
	for _, m := range s.state.outbox {
		cp := m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemoryStore) updateOutbox(id int64, apply func(m *model.OutboxMessage)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.state.outbox[id]
	if !ok {
		return nil
	}
	apply(&m)
	m.UpdatedAt = s.now()
	s.state.outbox[id] = m
	return nil
}
