package main

import (
	"context"
	"io"

	"github.com/UnendingLoop/Watermarker/internal/model"
)

type TaskAPIService interface {
	Submit(ctx context.Context, data *model.TaskCreateData) (*model.Task, error)
	Get(ctx context.Context, id string) (*model.Task, error)
	LoadResult(ctx context.Context, id string) (io.ReadCloser, string, error)
	GetList(ctx context.Context, req *model.ListRequest) ([]model.Task, error)
	Delete(ctx context.Context, id string) error
	ReviveOrphans(ctx context.Context, limit int)
}

type SettingsAPIService interface {
	SetWatermark(ctx context.Context, data *model.WatermarkData) (*model.ChannelSettings, error)
	GetWatermark(ctx context.Context, serverID, channelID string, preview int) (io.ReadCloser, string, error)
	SetOpacity(ctx context.Context, serverID, channelID string, opacity int) (*model.ChannelSettings, error)
	ClearWatermark(ctx context.Context, serverID, channelID string) error
}
