package provider

import (
	"errors"
	"fmt"
)

// Standardized wallet RPC error codes.
const (
	CodeUserRejected   = 4001
	CodeUnknownChain   = 4902
	CodePendingRequest = -32002
	CodeInvalidParams  = -32602
)

// RPCError is a wallet or node error surfaced verbatim: the provider never
// retries and never rewrites codes.
type RPCError struct {
	Code    int
	Message string
	Data    any
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// AsRPCError unwraps err into an *RPCError when one is present.
func AsRPCError(err error) (*RPCError, bool) {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr, true
	}
	return nil, false
}

func hasCode(err error, code int) bool {
	rpcErr, ok := AsRPCError(err)
	return ok && rpcErr.Code == code
}

// IsUserRejection reports a declined wallet prompt (4001).
func IsUserRejection(err error) bool { return hasCode(err, CodeUserRejected) }

// IsPendingRequest reports a busy wallet (-32002).
func IsPendingRequest(err error) bool { return hasCode(err, CodePendingRequest) }

// IsUnknownChain reports a chain the wallet has not added (4902).
func IsUnknownChain(err error) bool { return hasCode(err, CodeUnknownChain) }

// IsAlreadyAdded reports the duplicate-chain rejection (-32602), which
// callers treat as success.
func IsAlreadyAdded(err error) bool { return hasCode(err, CodeInvalidParams) }
