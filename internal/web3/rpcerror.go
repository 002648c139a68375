package web3

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"syscall"

	xerrors "ChainAgent/internal/errors"
)

// RejectionFunc 判断错误是否为节点返回的应用层拒绝。
type RejectionFunc func(error) bool

// ClassifyRPCError 将一次 RPC 调用的失败映射为链路错误码。
//
// 提交阶段之外的传输故障均为 NETWORK_UNAVAILABLE；提交阶段只有连接未建立
// 时才是 NETWORK_UNAVAILABLE，请求发出后的超时、取消或断连一律记为
// SUBMISSION_UNKNOWN。
func ClassifyRPCError(stage Stage, op string, err error, rejected RejectionFunc) error {
	if err == nil {
		return nil
	}
	if _, ok := xerrors.From(err); ok {
		return AtStage(stage, err)
	}
	opt := xerrors.WithMetadata("rpc_method", op)

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if stage == StageSubmit {
			return StageError(CodeSubmissionUnknown, stage, err, "提交请求已发出但未收到响应", opt)
		}
		if errors.Is(err, context.Canceled) {
			return StageError(xerrors.CodeCancelled, stage, err, "调用方已取消", opt)
		}
		return StageError(CodeNetworkUnavailable, stage, err, "RPC 调用超时", opt)
	}
	if rejected != nil && rejected(err) {
		return StageError(CodeRPCRejected, stage, err, "节点拒绝请求", opt)
	}
	if stage == StageSubmit {
		if IsDialFailure(err) {
			return StageError(CodeNetworkUnavailable, stage, err, "无法连接 RPC 节点", opt)
		}
		return StageError(CodeSubmissionUnknown, stage, err, "提交结果未知", opt)
	}
	return StageError(CodeNetworkUnavailable, stage, err, "RPC 节点不可用", opt)
}

// IsDialFailure 判断请求是否在建立连接阶段就失败，此时交易一定没有离开进程。
func IsDialFailure(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}

// IsTransportError 判断错误是否来自网络传输层。
func IsTransportError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	return IsDialFailure(err) || errors.Is(err, syscall.ECONNRESET)
}
