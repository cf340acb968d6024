package codec

import "zigbee-bridge/internal/ncp"

// UnknownErrorMessage is the message for codes outside the known set.
const UnknownErrorMessage = "Unknown Error"

var errorMessages = map[ncp.ErrorCode]string{
	ncp.CodeSuccess:          "Operation successful",
	ncp.CodeBusy:             "Busy",
	ncp.CodeBadArgs:          "Bad arguments",
	ncp.CodeNoMem:            "Not enough memory",
	ncp.CodeNotInitialized:   "Not initialized",
	ncp.CodeNotSupported:     "Not supported",
	ncp.CodeAccessDenied:     "Access denied",
	ncp.CodeInterrupted:      "Interrupted",
	ncp.CodeTimeout:          "Timeout",
	ncp.CodeTryAgain:         "Try again",
	ncp.CodeNotConnected:     "Not connected",
	ncp.CodeNetworkFailure:   "Network failure",
	ncp.CodeDeviceNotFound:   "Device not found",
	ncp.CodeEndpointNotFound: "Endpoint not found",
	ncp.CodeClusterNotFound:  "Cluster not found",
	ncp.CodeNoResponse:       "No response",
	ncp.CodeNotJoined:        "Not joined to a network",
	ncp.CodeProtocolError:    "Zigbee protocol error",
	ncp.CodeInvalidState:     "Invalid state",
}

// ErrorDocument is the rendered form of a failed call.
type ErrorDocument struct {
	Code    int32  `json:"code"`
	Message string `json:"message"`
}

// TranslateError maps a result code to its stable message. It never fails.
func TranslateError(code ncp.ErrorCode) ErrorDocument {
	msg, ok := errorMessages[code]
	if !ok {
		msg = UnknownErrorMessage
	}
	return ErrorDocument{Code: int32(code), Message: msg}
}
