package ncp

import "fmt"

// ErrorCode is the result code of a device-control API call.
type ErrorCode int32

const (
	CodeSuccess          ErrorCode = 0
	CodeBusy             ErrorCode = -7001
	CodeBadArgs          ErrorCode = -7002
	CodeNoMem            ErrorCode = -7003
	CodeNotInitialized   ErrorCode = -7004
	CodeNotSupported     ErrorCode = -7005
	CodeAccessDenied     ErrorCode = -7006
	CodeInterrupted      ErrorCode = -7007
	CodeTimeout          ErrorCode = -7008
	CodeTryAgain         ErrorCode = -7009
	CodeNotConnected     ErrorCode = -7010
	CodeNetworkFailure   ErrorCode = -7011
	CodeDeviceNotFound   ErrorCode = -7012
	CodeEndpointNotFound ErrorCode = -7013
	CodeClusterNotFound  ErrorCode = -7014
	CodeNoResponse       ErrorCode = -7015
	CodeNotJoined        ErrorCode = -7016
	CodeProtocolError    ErrorCode = -7017
	CodeInvalidState     ErrorCode = -7018
)

// Codes lists every known error code, success first.
var Codes = []ErrorCode{
	CodeSuccess, CodeBusy, CodeBadArgs, CodeNoMem, CodeNotInitialized,
	CodeNotSupported, CodeAccessDenied, CodeInterrupted, CodeTimeout,
	CodeTryAgain, CodeNotConnected, CodeNetworkFailure, CodeDeviceNotFound,
	CodeEndpointNotFound, CodeClusterNotFound, CodeNoResponse, CodeNotJoined,
	CodeProtocolError, CodeInvalidState,
}

// Error is a non-success result returned by the daemon for a call.
type Error struct {
	Op   string
	Code ErrorCode
}

func (e *Error) Error() string {
	return fmt.Sprintf("ncp %s: code %d", e.Op, int32(e.Code))
}
