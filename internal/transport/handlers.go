// Package transport provides methods for processing requests from endpoints
package transport

import (
	"context"
	"io"

	"github.com/UnendingLoop/Watermarker/internal/model"
	"github.com/UnendingLoop/Watermarker/internal/mwlogger"
	"github.com/wb-go/wbf/ginext"
)

type TaskHandler struct {
	service TaskService
}

type TaskService interface {
	Submit(ctx context.Context, data *model.TaskCreateData) (*model.Task, error)
	Get(ctx context.Context, id string) (*model.Task, error)
	Delete(ctx context.Context, id string) error                               // удалить как в базе, так и в minio
	LoadResult(ctx context.Context, id string) (io.ReadCloser, string, error)  // прям скачать результат
	GetList(ctx context.Context, req *model.ListRequest) ([]model.Task, error) // получить список
}

func NewTaskHandler(svc TaskService) *TaskHandler {
	return &TaskHandler{
		service: svc,
	}
}

func (h TaskHandler) SimplePinger(ctx *ginext.Context) {
	ctx.JSON(200, map[string]string{"message": "pong"})
}

// Submit accepts a multipart `image` for the channel in the path and queues a watermark task.
func (h TaskHandler) Submit(ctx *ginext.Context) {
	imageFile, imageHeader, err := ctx.Request.FormFile("image")
	if err != nil {
		ctx.JSON(400, map[string]string{"error": "image is required"})
		return
	}
	defer closeFileFlow(ctx.Request.Context(), imageFile)

	data := model.TaskCreateData{
		ServerID:  ctx.Param("server"),
		ChannelID: ctx.Param("channel"),
		FileName:  imageHeader.Filename,
		File:      imageFile,
		Size:      imageHeader.Size,
	}

	res, err := h.service.Submit(ctx.Request.Context(), &data)
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}

	ctx.JSON(202, res)
}

func (h TaskHandler) GetAllTasks(ctx *ginext.Context) {
	var req model.ListRequest

	if err := ctx.ShouldBindQuery(&req); err != nil {
		ctx.JSON(400, map[string]string{"error": "failed to parse query-params"})
		return
	}

	res, err := h.service.GetList(ctx.Request.Context(), &req)
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}

	ctx.JSON(200, res)
}

func (h TaskHandler) GetTask(ctx *ginext.Context) {
	res, err := h.service.Get(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}

	ctx.JSON(200, res)
}

func (h TaskHandler) LoadResult(ctx *ginext.Context) {
	id := ctx.Param("id")

	res, cType, err := h.service.LoadResult(ctx.Request.Context(), id)
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}
	defer closeFileFlow(ctx.Request.Context(), res)

	streamFile(ctx, res, cType)
}

func (h TaskHandler) Delete(ctx *ginext.Context) {
	id := ctx.Param("id")
	if err := h.service.Delete(ctx.Request.Context(), id); err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}

	ctx.Status(204)
}

func streamFile(ctx *ginext.Context, res io.Reader, cType string) {
	ctx.Writer.Header().Set("Content-Type", cType)
	ctx.Writer.WriteHeader(200)
	if n, err := io.Copy(ctx.Writer, res); err != nil {
		logger := mwlogger.LoggerFromContext(ctx.Request.Context())
		logger.Error().Err(err).Int64("written", n).Msg("Failed to write file to response")
	}
}
