package faults

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

const fallbackReason = "transaction failed"

// RevertReason picks the most specific failure description out of a ledger
// error. Preference order: decoded contract revert reason, structured error
// payload message, plain error message, fixed fallback.
func RevertReason(err error) string {
	if err == nil {
		return fallbackReason
	}

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if reason := reasonFromData(dataErr.ErrorData()); reason != "" {
			return reason
		}
	}

	if msg := strings.TrimSpace(err.Error()); msg != "" {
		// Node error strings often carry the revert reason inline.
		if idx := strings.Index(msg, "execution reverted:"); idx >= 0 {
			if r := strings.TrimSpace(msg[idx+len("execution reverted:"):]); r != "" {
				return r
			}
		}
		return msg
	}
	return fallbackReason
}

func reasonFromData(data interface{}) string {
	switch v := data.(type) {
	case string:
		raw, err := hexutil.Decode(v)
		if err != nil {
			return ""
		}
		reason, err := abi.UnpackRevert(raw)
		if err != nil {
			return ""
		}
		return reason
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			return msg
		}
	}
	return ""
}
