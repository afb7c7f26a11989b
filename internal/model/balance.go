package model

import (
	"time"
)

// MemberBalance 会员积分余额表
// 每个会员最多一行，首次成交时才创建（不存在等价于 0 积分）
// 只允许交易引擎修改
type MemberBalance struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MemberID  int64     `gorm:"uniqueIndex;not null" json:"member_id"`
	Points    int64     `gorm:"not null;default:0" json:"points"`  // 可用积分，永不为负
	Version   int       `gorm:"not null;default:0" json:"version"` // 乐观锁版本号
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (MemberBalance) TableName() string {
	return "member_balance"
}
