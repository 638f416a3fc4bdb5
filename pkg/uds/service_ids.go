package uds

const (
	/* DIAGNOSTIC AND COMMUNICATION MANAGEMENT FUNCTIONAL UNIT */
	DIAGNOSTIC_SESSION_CONTROL = 0x10
	ECU_RESET                  = 0x11
	SECURITY_ACCESS            = 0x27
	COMMUNICATION_CONTROL      = 0x28
	TESTER_PRESENT             = 0x3E
	ACCESS_TIMING_PARAMETER    = 0x83
	SECURED_DATA_TRANSMISSION  = 0x84
	CONTROL_DTC_SETTING        = 0x85
	RESPONSE_ON_EVENT          = 0x86
	LINK_CONTROL               = 0x87

	/* DATA TRANSMISSION FUNCTIONAL UNIT */
	READ_DATA_BY_IDENTIFIER            = 0x22
	READ_MEMORY_BY_ADDRESS             = 0x23
	READ_SCALING_DATA_BY_IDENTIFIER    = 0x24
	READ_DATA_BY_PERIODIC_IDENTIFIER   = 0x2A
	DYNAMICALLY_DEFINE_DATA_IDENTIFIER = 0x2C
	WRITE_DATA_BY_IDENTIFIER           = 0x2E
	WRITE_MEMORY_BY_ADDRESS            = 0x3D

	/* STORED DATA TRANSMISSION FUNCTIONAL UNIT */
	CLEAR_DIAGNOSTIC_INFORMATION = 0x14
	READ_DTC_INFORMATION         = 0x19

	/* INPUTOUTPUT CONTROL FUNCTIONAL UNIT */
	INPUT_OUTPUT_CONTROL_BY_IDENTIFIER = 0x2F

	/* REMOTE ACTIVATION OF ROUTINE FUNCTIONAL UNIT */
	ROUTINE_CONTROL = 0x31

	/* UPLOAD DOWNLOAD FUNCTIONAL UNIT */
	REQUEST_DOWNLOAD      = 0x34
	REQUEST_UPLOAD        = 0x35
	TRANSFER_DATA         = 0x36
	REQUEST_TRANSFER_EXIT = 0x37
	REQUEST_FILE_TRANSFER = 0x38

	NEGATIVE_RESPONSE = 0x7F

	// POSITIVE_RESPONSE_OFFSET is added to the service id in a positive reply.
	POSITIVE_RESPONSE_OFFSET = 0x40

	/* Diagnostic session types */
	DEFAULT_SESSION  = 0x01
	PROGRAMMING      = 0x02
	EXTENDED_SESSION = 0x03
)

// UnknownService is returned by ServiceName for ids missing from the table.
const UnknownService = "Unknown service"

var serviceNames = map[byte]string{
	DIAGNOSTIC_SESSION_CONTROL:         "DIAGNOSTIC_SESSION_CONTROL",
	ECU_RESET:                          "ECU_RESET",
	CLEAR_DIAGNOSTIC_INFORMATION:       "CLEAR_DIAGNOSTIC_INFORMATION",
	READ_DTC_INFORMATION:               "READ_DTC_INFORMATION",
	READ_DATA_BY_IDENTIFIER:            "READ_DATA_BY_IDENTIFIER",
	READ_MEMORY_BY_ADDRESS:             "READ_MEMORY_BY_ADDRESS",
	READ_SCALING_DATA_BY_IDENTIFIER:    "READ_SCALING_DATA_BY_IDENTIFIER",
	SECURITY_ACCESS:                    "SECURITY_ACCESS",
	COMMUNICATION_CONTROL:              "COMMUNICATION_CONTROL",
	READ_DATA_BY_PERIODIC_IDENTIFIER:   "READ_DATA_BY_PERIODIC_IDENTIFIER",
	DYNAMICALLY_DEFINE_DATA_IDENTIFIER: "DYNAMICALLY_DEFINE_DATA_IDENTIFIER",
	WRITE_DATA_BY_IDENTIFIER:           "WRITE_DATA_BY_IDENTIFIER",
	INPUT_OUTPUT_CONTROL_BY_IDENTIFIER: "INPUT_OUTPUT_CONTROL_BY_IDENTIFIER",
	ROUTINE_CONTROL:                    "ROUTINE_CONTROL",
	REQUEST_DOWNLOAD:                   "REQUEST_DOWNLOAD",
	REQUEST_UPLOAD:                     "REQUEST_UPLOAD",
	TRANSFER_DATA:                      "TRANSFER_DATA",
	REQUEST_TRANSFER_EXIT:              "REQUEST_TRANSFER_EXIT",
	REQUEST_FILE_TRANSFER:              "REQUEST_FILE_TRANSFER",
	WRITE_MEMORY_BY_ADDRESS:            "WRITE_MEMORY_BY_ADDRESS",
	TESTER_PRESENT:                     "TESTER_PRESENT",
	NEGATIVE_RESPONSE:                  "NEGATIVE_RESPONSE",
	ACCESS_TIMING_PARAMETER:            "ACCESS_TIMING_PARAMETER",
	SECURED_DATA_TRANSMISSION:          "SECURED_DATA_TRANSMISSION",
	CONTROL_DTC_SETTING:                "CONTROL_DTC_SETTING",
	RESPONSE_ON_EVENT:                  "RESPONSE_ON_EVENT",
	LINK_CONTROL:                       "LINK_CONTROL",
}

func ServiceName(id byte) string {
	if name, ok := serviceNames[id]; ok {
		return name
	}
	return UnknownService
}

// IsPositiveResponse reports whether b echoes service id as a positive reply.
// Services from 0xC0 up have no positive echo in a byte.
func IsPositiveResponse(b, service byte) bool {
	if service >= 0x100-POSITIVE_RESPONSE_OFFSET {
		return false
	}
	return b == service+POSITIVE_RESPONSE_OFFSET
}
