package transport

import (
	"context"
	"errors"
	"io"

	"github.com/UnendingLoop/Watermarker/internal/model"
	"github.com/UnendingLoop/Watermarker/internal/mwlogger"
)

func errorCodeDefiner(err error) int {
	switch {
	case errors.Is(err, model.ErrCommon500):
		return 500
	case errors.Is(err, model.ErrTaskNotFound),
		errors.Is(err, model.ErrResultNotReady),
		errors.Is(err, model.ErrNoWatermark):
		return 404
	case errors.Is(err, model.ErrTaskInProgress):
		return 409
	case errors.Is(err, model.ErrTooLarge):
		return 413
	case errors.Is(err, model.ErrIncorrectQuery),
		errors.Is(err, model.ErrIncorrectID),
		errors.Is(err, model.ErrIncorrectChannel),
		errors.Is(err, model.ErrIncorrectOpacity),
		errors.Is(err, model.ErrEmptySource),
		errors.Is(err, model.ErrEmptyWMark),
		errors.Is(err, model.ErrUnsupportedWMFormat),
		errors.Is(err, model.ErrUnsupportedFormat):
		return 400
	default:
		return 500
	}
}

func closeFileFlow(ctx context.Context, res io.Closer) {
	if res == nil {
		return
	}
	if err := res.Close(); err != nil {
		logger := mwlogger.LoggerFromContext(ctx)
		logger.Warn().Err(err).Msg("Handler failed to close fileflow")
	}
}
