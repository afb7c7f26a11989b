package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 成交方向常量
// ============================================================================

type TradeKind string

const (
	TradeKindBuy  TradeKind = "buy"
	TradeKindSell TradeKind = "sell"
)

// ParseTradeKind 只接受精确的 buy / sell
func ParseTradeKind(s string) (TradeKind, bool) {
	switch TradeKind(s) {
	case TradeKindBuy:
		return TradeKindBuy, true
	case TradeKindSell:
		return TradeKindSell, true
	}
	return "", false
}

// ============================================================================
// 成交流水实体
// ============================================================================

// TradeTransaction 成交流水表
//
// 【重要】流水表设计原则：
// 1. 只追加，不修改，不删除：永久审计记录
// 2. 请求字段原样记录（单价、手续费、总价）
// 3. 记录成交前后积分：便于校验余额一致性
type TradeTransaction struct {
	ID            int64           `gorm:"primaryKey;autoIncrement:false" json:"id"`
	TransactionNo string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"`
	RequestID     *string         `gorm:"type:varchar(64);uniqueIndex:uk_trade_member_request,priority:2" json:"request_id,omitempty"` // 幂等键，可空
	MemberID      int64           `gorm:"index;uniqueIndex:uk_trade_member_request,priority:1;not null" json:"member_id"`
	ItemID        int64           `gorm:"index;not null" json:"item_id"`
	Kind          TradeKind       `gorm:"type:varchar(8);not null" json:"kind"`
	Quantity      int64           `gorm:"not null" json:"quantity"`
	UnitPrice     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_price"`
	Fee           decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"fee"`
	TotalPrice    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"total_price"`
	BalanceBefore int64           `gorm:"not null" json:"balance_before"`
	BalanceAfter  int64           `gorm:"not null" json:"balance_after"`
	CreatedAt     time.Time       `gorm:"index" json:"created_at"`
}

func (TradeTransaction) TableName() string {
	return "trade_transaction"
}
