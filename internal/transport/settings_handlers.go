package transport

import (
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/UnendingLoop/Watermarker/internal/model"
	"github.com/wb-go/wbf/ginext"
)

type SettingsHandler struct {
	service SettingsService
}

type SettingsService interface {
	SetWatermark(ctx context.Context, data *model.WatermarkData) (*model.ChannelSettings, error)
	GetWatermark(ctx context.Context, serverID, channelID string, preview int) (io.ReadCloser, string, error)
	SetOpacity(ctx context.Context, serverID, channelID string, opacity int) (*model.ChannelSettings, error)
	ClearWatermark(ctx context.Context, serverID, channelID string) error
}

func NewSettingsHandler(svc SettingsService) *SettingsHandler {
	return &SettingsHandler{service: svc}
}

// SetWatermark replaces the channel watermark with the multipart `watermark` file.
// An optional `opacity` field (percent) is applied in the same call.
func (h SettingsHandler) SetWatermark(ctx *ginext.Context) {
	var opacity *int
	if raw := strings.TrimSpace(ctx.PostForm("opacity")); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil {
			ctx.JSON(400, map[string]string{"error": model.ErrIncorrectOpacity.Error()})
			return
		}
		opacity = &val
	}

	wmFile, wmHeader, err := ctx.Request.FormFile("watermark")
	if err != nil {
		ctx.JSON(400, map[string]string{"error": "watermark is required"})
		return
	}
	defer closeFileFlow(ctx.Request.Context(), wmFile)

	data := model.WatermarkData{
		ServerID:  ctx.Param("server"),
		ChannelID: ctx.Param("channel"),
		File:      wmFile,
		Size:      wmHeader.Size,
		Opacity:   opacity,
	}

	res, err := h.service.SetWatermark(ctx.Request.Context(), &data)
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}

	ctx.JSON(200, res)
}

// GetWatermark streams the channel watermark; ?preview=N returns a PNG fitting N x N.
func (h SettingsHandler) GetWatermark(ctx *ginext.Context) {
	preview := 0
	if raw := ctx.Query("preview"); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil || val < 0 {
			ctx.JSON(400, map[string]string{"error": model.ErrIncorrectQuery.Error()})
			return
		}
		preview = val
	}

	res, cType, err := h.service.GetWatermark(ctx.Request.Context(), ctx.Param("server"), ctx.Param("channel"), preview)
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}
	defer closeFileFlow(ctx.Request.Context(), res)

	streamFile(ctx, res, cType)
}

func (h SettingsHandler) SetOpacity(ctx *ginext.Context) {
	val, err := strconv.Atoi(strings.TrimSpace(ctx.PostForm("opacity")))
	if err != nil {
		ctx.JSON(400, map[string]string{"error": model.ErrIncorrectOpacity.Error()})
		return
	}

	res, err := h.service.SetOpacity(ctx.Request.Context(), ctx.Param("server"), ctx.Param("channel"), val)
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}

	ctx.JSON(200, res)
}

func (h SettingsHandler) ClearWatermark(ctx *ginext.Context) {
	if err := h.service.ClearWatermark(ctx.Request.Context(), ctx.Param("server"), ctx.Param("channel")); err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}

	ctx.Status(204)
}
