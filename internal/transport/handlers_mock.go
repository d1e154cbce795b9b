package transport

import (
	"context"
	"io"

	"github.com/UnendingLoop/Watermarker/internal/model"
	"github.com/gin-gonic/gin"
)

type mockTaskService struct {
	submitFn     func(ctx context.Context, d *model.TaskCreateData) (*model.Task, error)
	getFn        func(ctx context.Context, id string) (*model.Task, error)
	deleteFn     func(ctx context.Context, id string) error
	loadResultFn func(ctx context.Context, id string) (io.ReadCloser, string, error)
	getListFn    func(ctx context.Context, req *model.ListRequest) ([]model.Task, error)
}

func (m *mockTaskService) Submit(ctx context.Context, d *model.TaskCreateData) (*model.Task, error) {
	return m.submitFn(ctx, d)
}

func (m *mockTaskService) Get(ctx context.Context, id string) (*model.Task, error) {
	return m.getFn(ctx, id)
}

func (m *mockTaskService) Delete(ctx context.Context, id string) error {
	return m.deleteFn(ctx, id)
}

func (m *mockTaskService) LoadResult(ctx context.Context, id string) (io.ReadCloser, string, error) {
	return m.loadResultFn(ctx, id)
}

func (m *mockTaskService) GetList(ctx context.Context, req *model.ListRequest) ([]model.Task, error) {
	return m.getListFn(ctx, req)
}

type mockSettingsService struct {
	setWatermarkFn   func(ctx context.Context, d *model.WatermarkData) (*model.ChannelSettings, error)
	getWatermarkFn   func(ctx context.Context, serverID, channelID string, preview int) (io.ReadCloser, string, error)
	setOpacityFn     func(ctx context.Context, serverID, channelID string, opacity int) (*model.ChannelSettings, error)
	clearWatermarkFn func(ctx context.Context, serverID, channelID string) error
}

func (m *mockSettingsService) SetWatermark(ctx context.Context, d *model.WatermarkData) (*model.ChannelSettings, error) {
	return m.setWatermarkFn(ctx, d)
}

func (m *mockSettingsService) GetWatermark(ctx context.Context, serverID, channelID string, preview int) (io.ReadCloser, string, error) {
	return m.getWatermarkFn(ctx, serverID, channelID, preview)
}

func (m *mockSettingsService) SetOpacity(ctx context.Context, serverID, channelID string, opacity int) (*model.ChannelSettings, error) {
	return m.setOpacityFn(ctx, serverID, channelID, opacity)
}

func (m *mockSettingsService) ClearWatermark(ctx context.Context, serverID, channelID string) error {
	return m.clearWatermarkFn(ctx, serverID, channelID)
}

func init() {
	gin.SetMode(gin.TestMode)
}
