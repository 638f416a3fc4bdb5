package uds

import (
	"fmt"
)

const (
	GENERAL_REJECT                               = 0x10
	SERVICE_NOT_SUPPORTED                        = 0x11
	SUB_FUNCTION_NOT_SUPPORTED                   = 0x12
	INCORRECT_MESSAGE_LENGTH_OR_INVALID_FORMAT   = 0x13
	BUSY_REPEAT_REQUEST                          = 0x21
	CONDITIONS_NOT_CORRECT                       = 0x22
	REQUEST_OUT_OF_RANGE                         = 0x31
	SECURITY_ACCESS_DENIED                       = 0x33
	GENERAL_PROGRAMMING_FAILURE                  = 0x72
	REQUEST_CORRECTLY_RECEIVED_RESPONSE_PENDING  = 0x78
	SUB_FUNCTION_NOT_SUPPORTED_IN_ACTIVE_SESSION = 0x7E
	SERVICE_NOT_SUPPORTED_IN_ACTIVE_SESSION      = 0x7F
)

// The sub-function scan treats 0x12 as a rejection while the service scan
// only filters 0x11. Both sets are kept as-is until they are checked against
// the ISO 14229 NRC table; 0x7E is not filtered by either.
var (
	ServiceRejectCodes     = []byte{SERVICE_NOT_SUPPORTED}
	SubFunctionRejectCodes = []byte{SERVICE_NOT_SUPPORTED, SUB_FUNCTION_NOT_SUPPORTED, REQUEST_OUT_OF_RANGE}
)

var nrcNames = map[byte]string{
	GENERAL_REJECT:                               "generalReject",
	SERVICE_NOT_SUPPORTED:                        "serviceNotSupported",
	SUB_FUNCTION_NOT_SUPPORTED:                   "sub-functionNotSupported",
	INCORRECT_MESSAGE_LENGTH_OR_INVALID_FORMAT:   "incorrectMessageLengthOrInvalidFormat",
	BUSY_REPEAT_REQUEST:                          "busyRepeatRequest",
	CONDITIONS_NOT_CORRECT:                       "conditionsNotCorrect",
	REQUEST_OUT_OF_RANGE:                         "requestOutOfRange",
	SECURITY_ACCESS_DENIED:                       "securityAccessDenied",
	GENERAL_PROGRAMMING_FAILURE:                  "generalProgrammingFailure",
	REQUEST_CORRECTLY_RECEIVED_RESPONSE_PENDING:  "requestCorrectlyReceivedResponsePending",
	SUB_FUNCTION_NOT_SUPPORTED_IN_ACTIVE_SESSION: "sub-functionNotSupportedInActiveSession",
	SERVICE_NOT_SUPPORTED_IN_ACTIVE_SESSION:      "serviceNotSupportedInActiveSession",
}

func NRCName(code byte) string {
	if name, ok := nrcNames[code]; ok {
		return name
	}
	return fmt.Sprintf("unknown NRC 0x%02X", code)
}

// NegativeResponseError is a 0x7F reply to a request for Service.
type NegativeResponseError struct {
	Service byte
	Code    byte
}

func (e *NegativeResponseError) Error() string {
	return fmt.Sprintf("%s rejected: %s (0x%02X)", ServiceName(e.Service), NRCName(e.Code), e.Code)
}

// ParseNegativeResponse decodes a single frame negative response
// [len, 0x7F, service, code]. ok is false for any other shape.
func ParseNegativeResponse(data []byte) (*NegativeResponseError, bool) {
	if len(data) < 4 || data[1] != NEGATIVE_RESPONSE {
		return nil, false
	}
	return &NegativeResponseError{Service: data[2], Code: data[3]}, true
}

func Contains(codes []byte, code byte) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}
