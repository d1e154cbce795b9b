package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/UnendingLoop/Watermarker/internal/model"
	"github.com/UnendingLoop/Watermarker/internal/mwlogger"
	"github.com/UnendingLoop/Watermarker/internal/repository"
	"github.com/UnendingLoop/Watermarker/internal/storage"
	"github.com/google/uuid"
)

const maxWatermarkSize = 10 << 20

type SettingsService struct {
	repo      repository.SettingsRepo
	storage   ImageStorage
	previewer Previewer
}

func NewSettingsService(repo repository.SettingsRepo, strg ImageStorage, prev Previewer) *SettingsService {
	return &SettingsService{repo: repo, storage: strg, previewer: prev}
}

// SetWatermark makes the uploaded image the channel's active watermark, replacing the old one.
func (s SettingsService) SetWatermark(ctx context.Context, data *model.WatermarkData) (*model.ChannelSettings, error) {
	logger := mwlogger.LoggerFromContext(ctx)

	if err := validateChannel(data.ServerID, data.ChannelID); err != nil {
		return nil, err
	}
	if data.File == nil || data.Size <= 0 {
		return nil, model.ErrEmptyWMark
	}
	if data.Size > maxWatermarkSize {
		return nil, model.ErrTooLarge
	}
	opacity := 0
	if data.Opacity != nil {
		if err := validateOpacity(*data.Opacity); err != nil {
			return nil, err
		}
		opacity = *data.Opacity
	}

	raw, err := io.ReadAll(io.LimitReader(data.File, maxWatermarkSize+1))
	if err != nil {
		return nil, model.ErrEmptyWMark
	}
	if len(raw) > maxWatermarkSize {
		return nil, model.ErrTooLarge
	}
	ext, err := sniffWatermark(raw)
	if err != nil {
		return nil, err
	}

	old, err := s.repo.Get(ctx, data.ServerID, data.ChannelID)
	if err != nil && !errors.Is(err, model.ErrNoWatermark) {
		logger.Error().Err(err).Msg("Failed to load channel settings from DB")
		return nil, model.ErrCommon500
	}

	settings := &model.ChannelSettings{
		ServerID:       data.ServerID,
		ChannelID:      data.ChannelID,
		WatermarkKey:   fmt.Sprintf("%s%s/%s/%s%s", storage.WatermarkPrefix, data.ServerID, data.ChannelID, uuid.NewString(), ext),
		WatermarkCType: ctypeByExt(ext),
		Opacity:        opacity,
	}

	if err := s.storage.Put(ctx, settings.WatermarkKey, int64(len(raw)), settings.WatermarkCType, bytes.NewReader(raw)); err != nil {
		logger.Error().Err(err).Msg("Failed to save watermark in Storage")
		return nil, model.ErrCommon500
	}

	if err := s.repo.UpsertWatermark(ctx, settings); err != nil {
		logger.Error().Err(err).Msg("Failed to save channel settings in DB")
		if dErr := s.storage.Delete(ctx, settings.WatermarkKey); dErr != nil {
			logger.Warn().Err(dErr).Msg("Failed to delete unused watermark from Storage")
		}
		return nil, model.ErrCommon500
	}

	if old.HasWatermark() {
		if err := s.storage.Delete(ctx, old.WatermarkKey); err != nil {
			logger.Warn().Err(err).Str("key", old.WatermarkKey).Msg("Failed to delete replaced watermark from Storage")
		}
	}

	logger.Info().Str("server_id", data.ServerID).Str("channel_id", data.ChannelID).Msg("Channel watermark updated")
	return s.GetSettings(ctx, data.ServerID, data.ChannelID)
}

func (s SettingsService) GetSettings(ctx context.Context, serverID, channelID string) (*model.ChannelSettings, error) {
	if err := validateChannel(serverID, channelID); err != nil {
		return nil, err
	}

	res, err := s.repo.Get(ctx, serverID, channelID)
	if err != nil {
		if errors.Is(err, model.ErrNoWatermark) {
			return nil, err
		}
		logger := mwlogger.LoggerFromContext(ctx)
		logger.Error().Err(err).Msg("Failed to load channel settings from DB")
		return nil, model.ErrCommon500
	}
	return res, nil
}

// GetWatermark streams the active watermark. With preview > 0 a PNG preview that fits into
// preview x preview is returned instead.
func (s SettingsService) GetWatermark(ctx context.Context, serverID, channelID string, preview int) (io.ReadCloser, string, error) {
	logger := mwlogger.LoggerFromContext(ctx)

	settings, err := s.GetSettings(ctx, serverID, channelID)
	if err != nil {
		return nil, "", err
	}
	if !settings.HasWatermark() {
		return nil, "", model.ErrNoWatermark
	}

	data, cType, err := s.storage.Get(ctx, settings.WatermarkKey)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to fetch watermark from Storage")
		return nil, "", model.ErrCommon500
	}
	if preview <= 0 {
		if cType == "" {
			cType = settings.WatermarkCType
		}
		return data, cType, nil
	}
	defer closeFileFlow(ctx, data)

	thumb, _, err := s.previewer.Preview(data, preview)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to render watermark preview")
		return nil, "", model.ErrCommon500
	}
	return io.NopCloser(thumb), model.PNG, nil
}

func (s SettingsService) SetOpacity(ctx context.Context, serverID, channelID string, opacity int) (*model.ChannelSettings, error) {
	if err := validateChannel(serverID, channelID); err != nil {
		return nil, err
	}
	if err := validateOpacity(opacity); err != nil {
		return nil, err
	}

	if err := s.repo.UpsertOpacity(ctx, serverID, channelID, opacity); err != nil {
		logger := mwlogger.LoggerFromContext(ctx)
		logger.Error().Err(err).Msg("Failed to save channel opacity in DB")
		return nil, model.ErrCommon500
	}
	return s.GetSettings(ctx, serverID, channelID)
}

// ClearWatermark drops the channel settings and the stored watermark.
func (s SettingsService) ClearWatermark(ctx context.Context, serverID, channelID string) error {
	logger := mwlogger.LoggerFromContext(ctx)

	settings, err := s.GetSettings(ctx, serverID, channelID)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, serverID, channelID); err != nil {
		if errors.Is(err, model.ErrNoWatermark) {
			return err
		}
		logger.Error().Err(err).Msg("Failed to delete channel settings from DB")
		return model.ErrCommon500
	}

	if settings.HasWatermark() {
		if err := s.storage.Delete(ctx, settings.WatermarkKey); err != nil {
			logger.Warn().Err(err).Str("key", settings.WatermarkKey).Msg("Failed to delete watermark from Storage")
		}
	}
	return nil
}
