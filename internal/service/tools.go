package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"regexp"
	"strings"

	"github.com/UnendingLoop/Watermarker/internal/model"
	"github.com/UnendingLoop/Watermarker/internal/mwlogger"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Discord-like snowflakes as well as readable slugs
var channelIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

func validateChannel(serverID, channelID string) error {
	if !channelIDPattern.MatchString(serverID) || !channelIDPattern.MatchString(channelID) {
		return model.ErrIncorrectChannel
	}
	return nil
}

func validateOpacity(v int) error {
	if v < model.MinOpacity || v > model.MaxOpacity {
		return model.ErrIncorrectOpacity
	}
	return nil
}

// sniffWatermark fully decodes the watermark and returns the extension it is stored with.
func sniffWatermark(raw []byte) (string, error) {
	_, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return "", model.ErrUnsupportedWMFormat
		}
		return "", model.ErrEmptyWMark
	}

	ext, ok := model.WatermarkFormats[format]
	if !ok {
		return "", model.ErrUnsupportedWMFormat
	}
	return ext, nil
}

func ctypeByExt(ext string) string {
	if ct, ok := model.CTypeByExt[strings.ToLower(ext)]; ok {
		return ct
	}
	return model.Octet
}

func validateQueryParams(req *model.ListRequest) {
	// Обрабатываем пустые значения, присваиваем дефолты если надо
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.Limit <= 0 || req.Limit > 100 {
		req.Limit = 30
	}

	req.Sort = strings.TrimSpace(strings.ToLower(req.Sort))
	switch {
	case strings.Contains(req.Sort, model.ByUUID):
		req.Sort = "task_uid"
	default:
		req.Sort = "created_at"
	}

	req.Order = strings.TrimSpace(strings.ToLower(req.Order))
	switch {
	case strings.Contains(req.Order, model.OrderASC):
		req.Order = "ASC"
	default:
		req.Order = "DESC" // новое-выше
	}

	req.ServerID = strings.TrimSpace(req.ServerID)
	req.ChannelID = strings.TrimSpace(req.ChannelID)
}

func closeFileFlow(ctx context.Context, res io.ReadCloser) {
	if res == nil {
		return
	}
	if err := res.Close(); err != nil {
		logger := mwlogger.LoggerFromContext(ctx)
		logger.Warn().Err(err).Msg("Failed to close fileflow")
	}
}
