package handlers

import (
	"errors"

	"go.uber.org/zap"

	"github.com/thinhdnn/ai-test-management/internal/domain"
)

// logError logs server-side failures; client errors are left to the access
// log
func logError(logger *zap.Logger, msg string, err error) {
	if domain.IsNotFoundError(err) || domain.IsValidationError(err) || errors.Is(err, domain.ErrAlreadyExistsVal) {
		return
	}
	if appErr, ok := domain.AsAppError(err); ok && appErr.HTTPStatus < 500 {
		return
	}
	logger.Error(msg, zap.Error(err))
}
