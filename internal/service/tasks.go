package service

import (
	"context"
	"errors"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/UnendingLoop/Watermarker/internal/model"
	"github.com/UnendingLoop/Watermarker/internal/mwlogger"
	"github.com/UnendingLoop/Watermarker/internal/repository"
	"github.com/UnendingLoop/Watermarker/internal/storage"
	"github.com/google/uuid"
)

type TaskService struct {
	repo      repository.TaskRepo
	settings  repository.SettingsRepo
	publisher TaskPublisher
	storage   ImageStorage
	formats   FormatChecker
}

func NewTaskService(repo repository.TaskRepo, settings repository.SettingsRepo, pub TaskPublisher, strg ImageStorage, formats FormatChecker) *TaskService {
	return &TaskService{
		repo:      repo,
		settings:  settings,
		publisher: pub,
		storage:   strg,
		formats:   formats,
	}
}

// Submit stores the source image and the channel's current watermark for a new task and puts
// the task into the queue.
func (c TaskService) Submit(ctx context.Context, data *model.TaskCreateData) (*model.Task, error) {
	logger := mwlogger.LoggerFromContext(ctx)

	if err := validateChannel(data.ServerID, data.ChannelID); err != nil {
		return nil, err
	}
	if data.File == nil || data.Size <= 0 {
		return nil, model.ErrEmptySource
	}
	if !c.formats.Supports(data.FileName) {
		return nil, model.ErrUnsupportedFormat
	}

	settings, err := c.settings.Get(ctx, data.ServerID, data.ChannelID)
	if err != nil {
		if errors.Is(err, model.ErrNoWatermark) {
			return nil, err
		}
		logger.Error().Err(err).Msg("Failed to load channel settings from DB")
		return nil, model.ErrCommon500
	}
	if !settings.HasWatermark() {
		return nil, model.ErrNoWatermark
	}

	uid := uuid.New()
	ext := strings.ToLower(filepath.Ext(data.FileName))
	task := &model.Task{
		UID:          uid,
		ServerID:     data.ServerID,
		ChannelID:    data.ChannelID,
		FileName:     filepath.Base(data.FileName),
		SourceKey:    storage.SourcePrefix + uid.String() + ext,
		WatermarkKey: storage.OverlayPrefix + uid.String() + path.Ext(settings.WatermarkKey),
		Opacity:      settings.Opacity,
		Status:       model.StatusCreated,
	}

	if err := c.storage.Put(ctx, task.SourceKey, data.Size, ctypeByExt(ext), data.File); err != nil {
		logger.Error().Err(err).Msg("Failed to save source image in Storage")
		return nil, model.ErrCommon500
	}

	// the task keeps its own copy, so replacing the channel watermark does not affect queued tasks
	if err := c.storage.Copy(ctx, settings.WatermarkKey, task.WatermarkKey); err != nil {
		logger.Error().Err(err).Msg("Failed to snapshot channel watermark in Storage")
		c.cleanup(ctx, task.SourceKey)
		return nil, model.ErrCommon500
	}

	now := time.Now().UTC()
	task.CreatedAt = &now

	if err := c.repo.Create(ctx, task); err != nil {
		logger.Error().Err(err).Msg("Failed to create task in DB")
		c.cleanup(ctx, task.SourceKey, task.WatermarkKey)
		return nil, model.ErrCommon500
	}

	if err := c.publisher.SendWithRetry(ctx, retryStrategy, []byte(uid.String()), nil); err != nil {
		// the row stays in `created` and is picked up by ReviveOrphans later
		logger.Error().Err(err).Str("task_id", uid.String()).Msg("Failed to publish task to task-queue")
		return nil, model.ErrCommon500
	}

	logger.Info().Str("task_id", uid.String()).Str("server_id", task.ServerID).Str("channel_id", task.ChannelID).Msg("Task submitted")
	return task, nil
}

func (c TaskService) GetList(ctx context.Context, req *model.ListRequest) ([]model.Task, error) {
	logger := mwlogger.LoggerFromContext(ctx)
	validateQueryParams(req)

	res, err := c.repo.GetList(ctx, req)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to fetch tasks list from DB")
		return nil, model.ErrCommon500
	}

	return res, nil
}

func (c TaskService) Get(ctx context.Context, id string) (*model.Task, error) {
	if err := uuid.Validate(id); err != nil {
		return nil, model.ErrIncorrectID
	}

	res, err := c.repo.Get(ctx, id)
	if err != nil {
		return nil, c.repoError(ctx, err, "Failed to fetch task from DB")
	}

	return res, nil
}

func (c TaskService) LoadResult(ctx context.Context, id string) (io.ReadCloser, string, error) {
	logger := mwlogger.LoggerFromContext(ctx)

	res, err := c.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if res.Status != model.StatusDone {
		return nil, "", model.ErrResultNotReady
	}

	data, cType, err := c.storage.Get(ctx, res.ResultKey)
	if err != nil {
		logger.Error().Err(err).Str("task_id", id).Msg("Failed to fetch result image from Storage")
		return nil, "", model.ErrCommon500
	}
	if cType == "" {
		cType = ctypeByExt(path.Ext(res.ResultKey))
	}
	return data, cType, nil
}

// Delete removes a finished or queued task with its stored files. Quarantined sources are kept.
func (c TaskService) Delete(ctx context.Context, id string) error {
	res, err := c.Get(ctx, id)
	if err != nil {
		return err
	}
	if res.Status == model.StatusInProgress {
		return model.ErrTaskInProgress
	}

	if err := c.repo.Delete(ctx, id); err != nil {
		return c.repoError(ctx, err, "Failed to delete task from DB")
	}

	c.cleanup(ctx, res.SourceKey, res.WatermarkKey, res.ResultKey)
	return nil
}

func (c TaskService) UpdateStatus(ctx context.Context, id string, newStat model.Status) error {
	if err := uuid.Validate(id); err != nil {
		return model.ErrIncorrectID
	}

	if err := c.repo.UpdateStatus(ctx, id, newStat); err != nil {
		return c.repoError(ctx, err, "Failed to update task status in DB")
	}
	return nil
}

func (c TaskService) SaveResult(ctx context.Context, input *model.Task) error {
	t := time.Now().UTC()
	input.UpdatedAt = &t

	if err := c.repo.SaveResult(ctx, input); err != nil {
		return c.repoError(ctx, err, "Failed to save task result in DB")
	}
	return nil
}

func (c TaskService) SaveFailure(ctx context.Context, id string, reason string) error {
	if err := c.repo.SaveFailure(ctx, id, reason); err != nil {
		return c.repoError(ctx, err, "Failed to save task failure in DB")
	}
	return nil
}

// ReviveOrphans re-publishes tasks that got stuck before or during processing.
func (c TaskService) ReviveOrphans(ctx context.Context, limit int) {
	logger := mwlogger.LoggerFromContext(ctx)

	orphans, err := c.repo.FetchOrphans(ctx, limit)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load orphans from DB")
		return
	}

	for _, v := range orphans {
		if err := c.publisher.SendWithRetry(ctx, retryStrategy, []byte(v), nil); err != nil {
			logger.Error().Err(err).Str("task_id", v).Msg("Failed to publish orphan to queue")
		}
	}
	if len(orphans) > 0 {
		logger.Info().Int("count", len(orphans)).Msg("Orphan tasks re-published")
	}
}

func (c TaskService) repoError(ctx context.Context, err error, msg string) error {
	if errors.Is(err, model.ErrTaskNotFound) {
		return model.ErrTaskNotFound // 404
	}
	logger := mwlogger.LoggerFromContext(ctx)
	logger.Error().Err(err).Msg(msg)
	return model.ErrCommon500
}

// cleanup removes stored objects best-effort; failures are only logged.
func (c TaskService) cleanup(ctx context.Context, keys ...string) {
	logger := mwlogger.LoggerFromContext(ctx)
	for _, k := range keys {
		if k == "" {
			continue
		}
		if err := c.storage.Delete(ctx, k); err != nil {
			logger.Warn().Err(err).Str("key", k).Msg("Failed to delete object from Storage")
		}
	}
}
