package codes

// ErrorCodes maps GNU make exit codes to their descriptions
var ErrorCodes = map[int]string{
	0: "Success",
	1: "Targets not up to date",
	2: "Build errors",
}

// IsSuccess returns true if the exit code indicates a successful make run
func IsSuccess(code int) bool {
	return code == 0
}

// GetErrorMessage returns the error message for a given exit code, or a generic message if unknown
func GetErrorMessage(code int) string {
	if msg, ok := ErrorCodes[code]; ok {
		return msg
	}

	return "Unknown error"
}
