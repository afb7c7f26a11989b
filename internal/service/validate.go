package service

import (
	"context"
	"fmt"
	"math"
	"strings"

	"stockledger/internal/auth"
	"stockledger/internal/model"

	"github.com/shopspring/decimal"
)

var maxPoints = decimal.NewFromInt(math.MaxInt64)

// TradeRequest 成交请求，价格字段原样写入流水
type TradeRequest struct {
	RequestID  string
	ItemID     int64
	Kind       string
	Quantity   int64
	UnitPrice  decimal.Decimal
	Fee        decimal.Decimal
	TotalPrice decimal.Decimal
}

// validatedTrade 通过全部校验的请求，业务逻辑只接收这个类型
type validatedTrade struct {
	memberID  int64
	itemID    int64
	kind      model.TradeKind
	quantity  int64
	requestID *string
	unitPrice decimal.Decimal
	fee       decimal.Decimal
	total     decimal.Decimal
	points    int64 // total 对应的积分
}

// validate 按固定顺序校验，第一个失败即返回
//
//  1. actor 必须是已认证会员本人
//  2. 会员存在
//  3. 商品存在
//  4. quantity > 0
//  5. kind 为 buy / sell
//  6. 单价、手续费非负
//  7. 总价为非负整数积分
func (s *TradeService) validate(ctx context.Context, actorID int64, req TradeRequest) (*validatedTrade, error) {
	authed, ok := auth.MemberFromContext(ctx)
	if !ok || authed != actorID {
		return nil, ErrUnauthorized
	}

	exists, err := s.store.MemberExists(ctx, actorID)
	if err != nil {
		return nil, &CommitError{Op: "member_lookup", Err: err}
	}
	if !exists {
		return nil, &NotFoundError{Entity: "member", ID: actorID}
	}

	exists, err = s.catalog.ItemExists(ctx, req.ItemID)
	if err != nil {
		return nil, &CommitError{Op: "item_lookup", Err: err}
	}
	if !exists {
		return nil, &NotFoundError{Entity: "item", ID: req.ItemID}
	}

	if req.Quantity <= 0 {
		return nil, &ValidationError{Field: "quantity", Reason: "必须为正整数"}
	}

	kind, ok := model.ParseTradeKind(req.Kind)
	if !ok {
		return nil, &ValidationError{Field: "kind", Reason: fmt.Sprintf("只支持 buy / sell，收到 %q", req.Kind)}
	}

	if req.UnitPrice.IsNegative() {
		return nil, &ValidationError{Field: "unit_price", Reason: "不能为负"}
	}
	if req.Fee.IsNegative() {
		return nil, &ValidationError{Field: "fee", Reason: "不能为负"}
	}
	if req.TotalPrice.IsNegative() || !req.TotalPrice.Equal(req.TotalPrice.Truncate(0)) || req.TotalPrice.GreaterThan(maxPoints) {
		return nil, &ValidationError{Field: "total_price", Reason: "必须为非负整数积分"}
	}

	trade := &validatedTrade{
		memberID:  actorID,
		itemID:    req.ItemID,
		kind:      kind,
		quantity:  req.Quantity,
		unitPrice: req.UnitPrice,
		fee:       req.Fee,
		total:     req.TotalPrice,
		points:    req.TotalPrice.IntPart(),
	}
	if id := strings.TrimSpace(req.RequestID); id != "" {
		trade.requestID = &id
	}
	return trade, nil
}

// matches 重放请求必须与已提交的流水描述同一笔成交
func (t *validatedTrade) matches(record *model.TradeTransaction) bool {
	return record.ItemID == t.itemID &&
		record.Kind == t.kind &&
		record.Quantity == t.quantity &&
		record.TotalPrice.Equal(t.total)
}
