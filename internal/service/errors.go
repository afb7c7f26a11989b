package service

import (
	"errors"
	"fmt"
)

// ============================================================================
// 交易错误分类
// ============================================================================
//
// 除 CommitError 外都是确定性失败，原样重试结果不变；
// 任何错误返回时三张账本都没有变化。
// ============================================================================

var (
	ErrUnauthorized         = errors.New("无权操作该会员账户")
	ErrInsufficientFunds    = errors.New("积分不足")
	ErrInsufficientHoldings = errors.New("持仓不足")
)

// NotFoundError Entity 取值 member / item / transaction，按流水号查找时用 Key
type NotFoundError struct {
	Entity string
	ID     int64
	Key    string
}

func (e *NotFoundError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s 不存在: %s", e.Entity, e.Key)
	}
	return fmt.Sprintf("%s 不存在: %d", e.Entity, e.ID)
}

// ValidationError 请求字段不合法
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("参数 %s 不合法: %s", e.Field, e.Reason)
}

// CommitError 加锁或提交未完成，未产生任何写入，可重试
type CommitError struct {
	Op  string
	Err error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("交易提交失败(%s): %v", e.Op, e.Err)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}

// IsRetryable 只有提交失败值得重试
func IsRetryable(err error) bool {
	var ce *CommitError
	return errors.As(err, &ce)
}

// errorResult 用作指标标签
func errorResult(err error) string {
	var (
		nf *NotFoundError
		ve *ValidationError
		ce *CommitError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.As(err, &nf):
		return "not_found"
	case errors.As(err, &ve):
		return "validation"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrInsufficientHoldings):
		return "insufficient_holdings"
	case errors.As(err, &ce):
		return "commit_failed"
	default:
		return "error"
	}
}
