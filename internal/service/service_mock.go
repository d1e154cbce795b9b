package service

import (
	"context"
	"io"

	"github.com/UnendingLoop/Watermarker/internal/model"
	"github.com/wb-go/wbf/retry"
)

// MOCK TASK REPOSITORY

type mockTaskRepo struct {
	createFn       func(ctx context.Context, t *model.Task) error
	getFn          func(ctx context.Context, id string) (*model.Task, error)
	getListFn      func(ctx context.Context, req *model.ListRequest) ([]model.Task, error)
	deleteFn       func(ctx context.Context, id string) error
	updateStatusFn func(ctx context.Context, id string, st model.Status) error
	saveResultFn   func(ctx context.Context, t *model.Task) error
	saveFailureFn  func(ctx context.Context, id string, reason string) error
	fetchOrphansFn func(ctx context.Context, limit int) ([]string, error)
}

func (m *mockTaskRepo) Create(ctx context.Context, t *model.Task) error {
	return m.createFn(ctx, t)
}

func (m *mockTaskRepo) Get(ctx context.Context, id string) (*model.Task, error) {
	return m.getFn(ctx, id)
}

func (m *mockTaskRepo) GetList(ctx context.Context, req *model.ListRequest) ([]model.Task, error) {
	return m.getListFn(ctx, req)
}

func (m *mockTaskRepo) Delete(ctx context.Context, id string) error {
	return m.deleteFn(ctx, id)
}

func (m *mockTaskRepo) UpdateStatus(ctx context.Context, id string, st model.Status) error {
	return m.updateStatusFn(ctx, id, st)
}

func (m *mockTaskRepo) SaveResult(ctx context.Context, t *model.Task) error {
	return m.saveResultFn(ctx, t)
}

func (m *mockTaskRepo) SaveFailure(ctx context.Context, id string, reason string) error {
	return m.saveFailureFn(ctx, id, reason)
}

func (m *mockTaskRepo) FetchOrphans(ctx context.Context, limit int) ([]string, error) {
	return m.fetchOrphansFn(ctx, limit)
}

// MOCK SETTINGS REPOSITORY

type mockSettingsRepo struct {
	getFn             func(ctx context.Context, serverID, channelID string) (*model.ChannelSettings, error)
	upsertWatermarkFn func(ctx context.Context, s *model.ChannelSettings) error
	upsertOpacityFn   func(ctx context.Context, serverID, channelID string, opacity int) error
	deleteFn          func(ctx context.Context, serverID, channelID string) error
}

func (m *mockSettingsRepo) Get(ctx context.Context, serverID, channelID string) (*model.ChannelSettings, error) {
	return m.getFn(ctx, serverID, channelID)
}

func (m *mockSettingsRepo) UpsertWatermark(ctx context.Context, s *model.ChannelSettings) error {
	return m.upsertWatermarkFn(ctx, s)
}

func (m *mockSettingsRepo) UpsertOpacity(ctx context.Context, serverID, channelID string, opacity int) error {
	return m.upsertOpacityFn(ctx, serverID, channelID, opacity)
}

func (m *mockSettingsRepo) Delete(ctx context.Context, serverID, channelID string) error {
	return m.deleteFn(ctx, serverID, channelID)
}

// MOCK STORAGE

type mockStorage struct {
	putFn    func(ctx context.Context, key string, size int64, ct string, r io.Reader) error
	getFn    func(ctx context.Context, key string) (io.ReadCloser, string, error)
	deleteFn func(ctx context.Context, key string) error
	copyFn   func(ctx context.Context, src, dst string) error
}

func (m *mockStorage) Put(ctx context.Context, key string, size int64, ct string, r io.Reader) error {
	return m.putFn(ctx, key, size, ct, r)
}

func (m *mockStorage) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	return m.getFn(ctx, key)
}

func (m *mockStorage) Delete(ctx context.Context, key string) error {
	if m.deleteFn == nil {
		return nil
	}
	return m.deleteFn(ctx, key)
}

func (m *mockStorage) Copy(ctx context.Context, src, dst string) error {
	return m.copyFn(ctx, src, dst)
}

// MOCK PUBLISHER

type mockPublisher struct {
	sendFn func(ctx context.Context, s retry.Strategy, key []byte, v []byte) error
}

func (m *mockPublisher) SendWithRetry(ctx context.Context, s retry.Strategy, key []byte, v []byte) error {
	return m.sendFn(ctx, s, key, v)
}

// MOCK PREVIEWER

type mockPreviewer struct {
	previewFn func(r io.Reader, size int) (io.Reader, int64, error)
}

func (m *mockPreviewer) Preview(r io.Reader, size int) (io.Reader, int64, error) {
	return m.previewFn(r, size)
}
