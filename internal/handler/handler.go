package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"stockledger/internal/auth"
	"stockledger/internal/service"
	"stockledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Handler 统一处理器
type Handler struct {
	tradeService     *service.TradeService
	portfolioService *service.PortfolioService
	log              logrus.FieldLogger
}

func NewHandler(trade *service.TradeService, portfolio *service.PortfolioService, log logrus.FieldLogger) *Handler {
	return &Handler{
		tradeService:     trade,
		portfolioService: portfolio,
		log:              log,
	}
}

func memberParam(c *gin.Context) (int64, bool) {
	memberID, err := strconv.ParseInt(c.Param("member_id"), 10, 64)
	if err != nil || memberID <= 0 {
		response.ParamError(c, "member_id 参数错误")
		return 0, false
	}
	return memberID, true
}

// ============================================================
// 成交
// ============================================================

// ExecuteTradeRequest 成交请求
//
// 字段合法性由交易引擎按固定顺序校验，这里只做 JSON 解析。
// 整数字段按 json.Number 接收，1.5 这类值交给引擎在鉴权之后拒绝。
type ExecuteTradeRequest struct {
	RequestID  string          `json:"request_id"` // 幂等ID，可选
	ItemID     json.Number     `json:"item_id"`
	Kind       string          `json:"kind"` // buy / sell
	Quantity   json.Number     `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Fee        decimal.Decimal `json:"fee"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

// wholeNumber 非整数或缺省返回 0，由引擎报告对应字段错误
func wholeNumber(n json.Number) int64 {
	v, err := n.Int64()
	if err != nil {
		return 0
	}
	return v
}

// ExecuteTrade 买入或卖出
// POST /api/v1/members/:member_id/trades
func (h *Handler) ExecuteTrade(c *gin.Context) {
	memberID, ok := memberParam(c)
	if !ok {
		return
	}

	var req ExecuteTradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// 请求体无法解析时仍先判断身份
		if authed, ok := auth.MemberFromContext(c.Request.Context()); !ok || authed != memberID {
			h.writeError(c, service.ErrUnauthorized)
			return
		}
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	record, err := h.tradeService.Execute(c.Request.Context(), memberID, service.TradeRequest{
		RequestID:  req.RequestID,
		ItemID:     wholeNumber(req.ItemID),
		Kind:       req.Kind,
		Quantity:   wholeNumber(req.Quantity),
		UnitPrice:  req.UnitPrice,
		Fee:        req.Fee,
		TotalPrice: req.TotalPrice,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	response.Success(c, record)
}

// ============================================================
// 查询
// ============================================================

// GetTrade 按流水号查询成交
// GET /api/v1/members/:member_id/trades/:transaction_no
func (h *Handler) GetTrade(c *gin.Context) {
	memberID, ok := memberParam(c)
	if !ok {
		return
	}

	record, err := h.portfolioService.Trade(c.Request.Context(), memberID, c.Param("transaction_no"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	response.Success(c, record)
}

// GetBalance 查询积分
// GET /api/v1/members/:member_id/balance
func (h *Handler) GetBalance(c *gin.Context) {
	memberID, ok := memberParam(c)
	if !ok {
		return
	}

	points, err := h.portfolioService.CurrentBalance(c.Request.Context(), memberID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"member_id": memberID,
		"points":    points,
	})
}

// ListHoldings 查询当前持仓
// GET /api/v1/members/:member_id/holdings
func (h *Handler) ListHoldings(c *gin.Context) {
	memberID, ok := memberParam(c)
	if !ok {
		return
	}

	holdings, err := h.portfolioService.CurrentHoldings(c.Request.Context(), memberID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	list := make([]gin.H, 0, len(holdings))
	for _, hd := range holdings {
		list = append(list, gin.H{
			"id":         hd.ID,
			"item_id":    hd.ItemID,
			"quantity":   hd.Quantity,
			"status":     hd.Status,
			"created_at": hd.CreatedAt,
		})
	}
	response.Success(c, gin.H{
		"member_id": memberID,
		"list":      list,
	})
}

// writeError 错误分类到 HTTP 状态码与业务码
func (h *Handler) writeError(c *gin.Context, err error) {
	var (
		nf *service.NotFoundError
		ve *service.ValidationError
		ce *service.CommitError
	)
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		response.Forbidden(c, err.Error())
	case errors.As(err, &nf):
		response.Error(c, http.StatusNotFound, response.CodeResourceNotFound, err.Error())
	case errors.As(err, &ve):
		response.Error(c, http.StatusBadRequest, response.CodeParamError, err.Error())
	case errors.Is(err, service.ErrInsufficientFunds):
		response.Error(c, http.StatusConflict, response.CodeBalanceNotEnough, err.Error())
	case errors.Is(err, service.ErrInsufficientHoldings):
		response.Error(c, http.StatusConflict, response.CodeHoldingNotEnough, err.Error())
	case errors.As(err, &ce):
		c.Header("Retry-After", "1")
		response.Error(c, http.StatusServiceUnavailable, response.CodeCommitFailed, "系统繁忙，请稍后重试")
	default:
		h.log.WithError(err).WithField("path", c.FullPath()).Error("未分类错误")
		response.ServerError(c, "服务器内部错误")
	}
}
