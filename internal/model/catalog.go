package model

// Member 会员表，由账号体系维护，本服务只读
type Member struct {
	ID int64 `gorm:"primaryKey" json:"id"`
}

func (Member) TableName() string {
	return "member"
}

// StockItem 可交易品种目录，由目录服务维护，本服务只读
type StockItem struct {
	ID int64 `gorm:"primaryKey" json:"id"`
}

func (StockItem) TableName() string {
	return "stock_item"
}
