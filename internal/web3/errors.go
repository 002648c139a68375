package web3

import (
	xerrors "ChainAgent/internal/errors"
)

// MetadataStage 是错误元数据中记录失败阶段的键。
const MetadataStage = "stage"

// 链路错误码。
const (
	CodeInvalidInput        xerrors.Code = "INVALID_INPUT"
	CodeInvalidRecipient    xerrors.Code = "INVALID_RECIPIENT"
	CodeInvalidAmount       xerrors.Code = "INVALID_AMOUNT"
	CodeMissingCredentials  xerrors.Code = "MISSING_CREDENTIALS"
	CodeDerivationExhausted xerrors.Code = "DERIVATION_EXHAUSTED"
	CodeMissingSignerKey    xerrors.Code = "MISSING_SIGNER_KEY"
	CodeEmptyInstructionSet xerrors.Code = "EMPTY_INSTRUCTION_SET"
	CodeUnresolvedAccount   xerrors.Code = "UNRESOLVED_ACCOUNT"
	CodeNetworkUnavailable  xerrors.Code = "NETWORK_UNAVAILABLE"
	CodeRPCRejected         xerrors.Code = "RPC_REJECTED"
	CodeSubmissionUnknown   xerrors.Code = "SUBMISSION_UNKNOWN"
)

func init() {
	xerrors.Register(CodeInvalidInput, xerrors.Attributes{
		Message:  "invalid input",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeInvalidRecipient, xerrors.Attributes{
		Message:  "invalid recipient address",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeInvalidAmount, xerrors.Attributes{
		Message:  "invalid amount",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeMissingCredentials, xerrors.Attributes{
		Message:  "signing credentials not configured",
		Severity: xerrors.SeverityCritical,
		Alert:    true,
	})
	xerrors.Register(CodeDerivationExhausted, xerrors.Attributes{
		Message:  "no valid bump for program derived address",
		Severity: xerrors.SeverityCritical,
		Alert:    true,
	})
	xerrors.Register(CodeMissingSignerKey, xerrors.Attributes{
		Message:  "required signer key not loaded",
		Severity: xerrors.SeverityCritical,
		Alert:    true,
	})
	xerrors.Register(CodeEmptyInstructionSet, xerrors.Attributes{
		Message:  "transaction has no instructions",
		Severity: xerrors.SeverityWarning,
		Alert:    true,
	})
	xerrors.Register(CodeUnresolvedAccount, xerrors.Attributes{
		Message:  "instruction references an unresolved account",
		Severity: xerrors.SeverityWarning,
		Alert:    true,
	})
	xerrors.Register(CodeNetworkUnavailable, xerrors.Attributes{
		Message:   "rpc endpoint unavailable",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
	})
	xerrors.Register(CodeRPCRejected, xerrors.Attributes{
		Message:  "rpc node rejected the request",
		Severity: xerrors.SeverityWarning,
	})
	xerrors.Register(CodeSubmissionUnknown, xerrors.Attributes{
		Message:  "submission outcome unknown",
		Severity: xerrors.SeverityCritical,
		Alert:    true,
	})
}

// StageError 创建带阶段元数据的链路错误。
func StageError(code xerrors.Code, stage Stage, cause error, message string, opts ...xerrors.Option) *xerrors.Error {
	opts = append(opts, xerrors.WithMetadata(MetadataStage, string(stage)))
	if cause == nil {
		return xerrors.New(code, message, opts...)
	}
	return xerrors.Wrap(code, cause, message, opts...)
}

// AtStage 为尚未标注阶段的统一错误补充阶段信息，其余错误按 UNKNOWN 包装。
func AtStage(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	e, ok := xerrors.From(err)
	if !ok {
		return StageError(xerrors.CodeUnknown, stage, err, "")
	}
	if xerrors.MetadataOf(e, MetadataStage) != "" {
		return err
	}
	return e.With(xerrors.WithMetadata(MetadataStage, string(stage)))
}

var statusText = map[xerrors.Code]string{
	CodeInvalidInput:        "Error: Missing or invalid parameters",
	CodeInvalidRecipient:    "Error: Invalid recipient address",
	CodeInvalidAmount:       "Error: Invalid amount",
	CodeMissingCredentials:  "Error: Wallet credentials are not configured",
	CodeDerivationExhausted: "Error: Could not derive program address",
	CodeMissingSignerKey:    "Error: Signing key unavailable",
	CodeEmptyInstructionSet: "Transaction Error: nothing to submit",
	CodeUnresolvedAccount:   "Transaction Error: unresolved account",
	CodeNetworkUnavailable:  "Network Error: RPC endpoint unavailable, try again later",
	CodeRPCRejected:         "Transaction Error: rejected by the network",
	CodeSubmissionUnknown:   "Transaction status unknown: check the explorer before retrying",
	xerrors.CodeCancelled:   "Cancelled: nothing was submitted",
}

// StatusText 返回错误码对应的面向用户的状态描述。
func StatusText(code xerrors.Code) string {
	if text, ok := statusText[code]; ok {
		return text
	}
	return "Transaction Error occurred"
}
