package zap

import (
	"errors"
	"fmt"
)

// Kind 区分引擎调用失败的两类原因，orchestrator 按 Kind 记录诊断信息。
type Kind int

const (
	// KindUnreachable 网络层面无法访问引擎（连接失败、超时等）
	KindUnreachable Kind = iota
	// KindRejected 引擎返回了结构化错误（比如无效的 scanId）
	KindRejected
)

func (k Kind) String() string {
	switch k {
	case KindUnreachable:
		return "unreachable"
	case KindRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Error 单次引擎调用的失败，带上操作名方便排查。
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("zap %s: %s: %s", e.Op, e.Kind, e.Msg)
	}
	return fmt.Sprintf("zap %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind 判断 err 链上是否有指定 Kind 的引擎错误
func IsKind(err error, k Kind) bool {
	var ze *Error
	return errors.As(err, &ze) && ze.Kind == k
}
