package model

import (
	"fmt"
	"time"
)

// ============================================================================
// 持仓生命周期
// ============================================================================
//
// ACTIVE  -> REMOVED   卖出后数量恰好为 0
//
// REMOVED 是终态：行保留用于审计，之后再次买入同一品种会新建一行 ACTIVE 持仓。
// ============================================================================

type HoldingStatus string

const (
	HoldingStatusActive  HoldingStatus = "ACTIVE"
	HoldingStatusRemoved HoldingStatus = "REMOVED"
)

var ValidHoldingTransitions = map[HoldingStatus][]HoldingStatus{
	HoldingStatusActive: {HoldingStatusRemoved},
}

func CanHoldingTransitionTo(current, target HoldingStatus) bool {
	allowed, exists := ValidHoldingTransitions[current]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == target {
			return true
		}
	}
	return false
}

// Holding 会员持仓表
type Holding struct {
	ID        int64         `gorm:"primaryKey;autoIncrement" json:"id"`
	MemberID  int64         `gorm:"index:idx_holding_member_item;not null" json:"member_id"`
	ItemID    int64         `gorm:"index:idx_holding_member_item;not null" json:"item_id"`
	Quantity  int64         `gorm:"not null;default:0" json:"quantity"`
	Status    HoldingStatus `gorm:"type:varchar(20);not null;default:ACTIVE" json:"status"`
	ActiveKey *string       `gorm:"type:varchar(64);uniqueIndex" json:"-"` // ACTIVE 时为 member:item，REMOVED 时为 NULL
	Version   int           `gorm:"not null;default:0" json:"version"`
	RemovedAt *time.Time    `json:"removed_at,omitempty"`
	CreatedAt time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Holding) TableName() string {
	return "member_holding"
}

// NewActiveHolding 首次买入时创建持仓
func NewActiveHolding(memberID, itemID, quantity int64) *Holding {
	key := HoldingActiveKey(memberID, itemID)
	return &Holding{
		MemberID:  memberID,
		ItemID:    itemID,
		Quantity:  quantity,
		Status:    HoldingStatusActive,
		ActiveKey: &key,
	}
}

// HoldingActiveKey 同一会员同一品种最多一行 ACTIVE 持仓，靠这个唯一键保证
func HoldingActiveKey(memberID, itemID int64) string {
	return fmt.Sprintf("%d:%d", memberID, itemID)
}

// IsActive 持仓是否仍代表实际库存
func (h *Holding) IsActive() bool {
	switch h.Status {
	case HoldingStatusActive:
		return true
	case HoldingStatusRemoved:
		return false
	default:
		return false
	}
}

// MarkRemoved 数量清零后转为 REMOVED，不删除行
func (h *Holding) MarkRemoved(at time.Time) error {
	if !CanHoldingTransitionTo(h.Status, HoldingStatusRemoved) {
		return fmt.Errorf("持仓状态不允许移除: %s", h.Status)
	}
	if h.Quantity != 0 {
		return fmt.Errorf("持仓数量不为 0，不能移除: %d", h.Quantity)
	}
	h.Status = HoldingStatusRemoved
	h.ActiveKey = nil
	h.RemovedAt = &at
	return nil
}
