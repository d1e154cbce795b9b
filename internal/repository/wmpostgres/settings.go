package wmpostgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/UnendingLoop/Watermarker/internal/model"
	"github.com/wb-go/wbf/dbpg"
)

type SettingsRepo struct {
	DB             *dbpg.DB
	DefaultOpacity int
}

// Get returns the channel settings or model.ErrNoWatermark when the channel was never configured.
func (p SettingsRepo) Get(ctx context.Context, serverID, channelID string) (*model.ChannelSettings, error) {
	query := `SELECT server_id, channel_id, wm_key, wm_ctype, opacity, updated_at
	FROM channel_settings
	WHERE server_id = $1 AND channel_id = $2`
	var s model.ChannelSettings

	err := p.DB.QueryRowContext(ctx, query, serverID, channelID).Scan(&s.ServerID,
		&s.ChannelID,
		&s.WatermarkKey,
		&s.WatermarkCType,
		&s.Opacity,
		&s.UpdatedAt)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, model.ErrNoWatermark
		default:
			return nil, err
		}
	}
	return &s, nil
}

// UpsertWatermark sets the active watermark of a channel. Opacity is written only when positive,
// so a new watermark keeps the channel's current opacity (or the default for a new channel).
func (p SettingsRepo) UpsertWatermark(ctx context.Context, s *model.ChannelSettings) error {
	query := `INSERT INTO channel_settings (server_id, channel_id, wm_key, wm_ctype, opacity, updated_at)
	VALUES ($1, $2, $3, $4, CASE WHEN $5 > 0 THEN $5 ELSE $6 END, now())
	ON CONFLICT (server_id, channel_id) DO UPDATE
	SET wm_key = EXCLUDED.wm_key,
		wm_ctype = EXCLUDED.wm_ctype,
		opacity = CASE WHEN $5 > 0 THEN $5 ELSE channel_settings.opacity END,
		updated_at = now()`

	_, err := p.DB.Master.ExecContext(ctx, query, s.ServerID, s.ChannelID, s.WatermarkKey, s.WatermarkCType, s.Opacity, p.DefaultOpacity)
	return err
}

func (p SettingsRepo) UpsertOpacity(ctx context.Context, serverID, channelID string, opacity int) error {
	query := `INSERT INTO channel_settings (server_id, channel_id, opacity, updated_at)
	VALUES ($1, $2, $3, now())
	ON CONFLICT (server_id, channel_id) DO UPDATE
	SET opacity = EXCLUDED.opacity,
		updated_at = now()`

	_, err := p.DB.Master.ExecContext(ctx, query, serverID, channelID, opacity)
	return err
}

func (p SettingsRepo) Delete(ctx context.Context, serverID, channelID string) error {
	query := `DELETE FROM channel_settings WHERE server_id = $1 AND channel_id = $2`

	res, err := p.DB.Master.ExecContext(ctx, query, serverID, channelID)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrNoWatermark
	}
	return nil
}
