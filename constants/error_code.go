package constants

// ErrorCode is the closed set of failure codes persisted on FAILED jobs.
type ErrorCode string

const (
	ErrorCodeOCRExhausted  ErrorCode = "ocr_exhausted"
	ErrorCodeStorage       ErrorCode = "storage_error"
	ErrorCodeClaimConflict ErrorCode = "claim_conflict"
	ErrorCodeUnknown       ErrorCode = "unknown"
)

func (c ErrorCode) Valid() bool {
	switch c {
	case ErrorCodeOCRExhausted, ErrorCodeStorage, ErrorCodeClaimConflict, ErrorCodeUnknown:
		return true
	}
	return false
}
