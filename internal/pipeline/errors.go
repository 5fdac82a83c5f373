package pipeline

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/joseph-ayodele/doc-intake/constants"
	"github.com/joseph-ayodele/doc-intake/internal/common"
	"github.com/joseph-ayodele/doc-intake/internal/jobstate"
	"github.com/joseph-ayodele/doc-intake/internal/ocr"
)

// ErrorCodeFor maps a stage error onto the closed set of persisted codes.
func ErrorCodeFor(err error) constants.ErrorCode {
	var inv *jobstate.InvariantError
	switch {
	case err == nil:
		return constants.ErrorCodeUnknown
	case errors.Is(err, ocr.ErrExhausted):
		return constants.ErrorCodeOCRExhausted
	case errors.Is(err, common.ErrStorage), errors.Is(err, common.ErrDatabase):
		return constants.ErrorCodeStorage
	case errors.Is(err, common.ErrClaimConflict), errors.As(err, &inv):
		return constants.ErrorCodeClaimConflict
	}
	if code := constants.ErrorCode(common.AppErrorCode(err)); code.Valid() {
		return code
	}
	return constants.ErrorCodeUnknown
}

// maxErrorMessage bounds error_message.
const maxErrorMessage = 2000

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ToValidUTF8(err.Error(), "\uFFFD")
	if len(msg) > maxErrorMessage {
		cut := maxErrorMessage
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut]
	}
	return msg
}

// failure is the error returned for a job that ended FAILED.
func failure(code constants.ErrorCode, cause error) *common.AppError {
	return common.NewAppError(string(code), "job failed", cause)
}
