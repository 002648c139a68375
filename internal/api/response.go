package api

import (
	"encoding/json"
	"net/http"

	xerrors "ChainAgent/internal/errors"
	"ChainAgent/internal/task"
	"ChainAgent/internal/web3"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    xerrors.Code `json:"code"`
	Message string       `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	code := xerrors.CodeOf(err)
	message := err.Error()
	if e, ok := xerrors.From(err); ok {
		message = e.Message()
	}
	writeJSON(w, statusForCode(code), errorBody{Error: errorDetail{Code: code, Message: message}})
}

// statusForCode 将错误码映射为 HTTP 状态码。
func statusForCode(code xerrors.Code) int {
	switch code {
	case xerrors.CodeInvalidArgument, task.CodeTaskValidation,
		web3.CodeInvalidInput, web3.CodeInvalidRecipient, web3.CodeInvalidAmount:
		return http.StatusBadRequest
	case xerrors.CodeNotFound, task.CodeTaskNotFound:
		return http.StatusNotFound
	case xerrors.CodeConflict, task.CodeTaskConflict:
		return http.StatusConflict
	case xerrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case web3.CodeRPCRejected:
		return http.StatusUnprocessableEntity
	case web3.CodeNetworkUnavailable, xerrors.CodeInitializationFailure:
		return http.StatusServiceUnavailable
	case web3.CodeSubmissionUnknown, xerrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case xerrors.CodeCancelled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}
