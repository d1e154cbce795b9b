// Package wmpostgres keeps watermark tasks and channel settings in PostgreSQL
package wmpostgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/UnendingLoop/Watermarker/internal/model"
	"github.com/wb-go/wbf/dbpg"
)

type TaskRepo struct {
	DB *dbpg.DB
}

func (p TaskRepo) Create(ctx context.Context, t *model.Task) error {
	query := `INSERT INTO tasks (task_uid, server_id, channel_id, file_name, source_key, wm_key, result_key, opacity, status, err_msg, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := p.DB.Master.ExecContext(ctx, query, t.UID, t.ServerID, t.ChannelID, t.FileName, t.SourceKey, t.WatermarkKey,
		t.ResultKey, t.Opacity, t.Status, t.ErrMsg, t.CreatedAt, t.CreatedAt)
	return err
}

func (p TaskRepo) Get(ctx context.Context, id string) (*model.Task, error) {
	query := `SELECT task_uid, server_id, channel_id, file_name, source_key, wm_key, result_key, opacity, status, err_msg, created_at, updated_at
	FROM tasks
	WHERE task_uid = $1`
	var task model.Task

	err := p.DB.QueryRowContext(ctx, query, id).Scan(&task.UID,
		&task.ServerID,
		&task.ChannelID,
		&task.FileName,
		&task.SourceKey,
		&task.WatermarkKey,
		&task.ResultKey,
		&task.Opacity,
		&task.Status,
		&task.ErrMsg,
		&task.CreatedAt,
		&task.UpdatedAt)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, model.ErrTaskNotFound
		default:
			return nil, err // 500
		}
	}
	return &task, nil
}

// GetList expects req.Sort and req.Order to be validated column/direction names.
func (p TaskRepo) GetList(ctx context.Context, req *model.ListRequest) ([]model.Task, error) {
	var (
		where []string
		args  []any
	)
	if req.ServerID != "" {
		args = append(args, req.ServerID)
		where = append(where, fmt.Sprintf("server_id = $%d", len(args)))
	}
	if req.ChannelID != "" {
		args = append(args, req.ChannelID)
		where = append(where, fmt.Sprintf("channel_id = $%d", len(args)))
	}

	filter := ""
	if len(where) > 0 {
		filter = "WHERE " + strings.Join(where, " AND ")
	}

	args = append(args, req.Limit, (req.Page-1)*req.Limit)
	query := fmt.Sprintf(`SELECT task_uid, server_id, channel_id, file_name, opacity, status, err_msg, created_at, updated_at
	FROM tasks
	%s
	ORDER BY %s %s
	LIMIT $%d
	OFFSET $%d`, filter, req.Sort, req.Order, len(args)-1, len(args))

	rows, err := p.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := rows.Close(); err != nil {
			log.Printf("Error while closing *sql.Rows after scanning: %v", err)
		}
	}()

	tasks := make([]model.Task, 0, req.Limit)
	for rows.Next() {
		var task model.Task
		if err := rows.Scan(&task.UID,
			&task.ServerID,
			&task.ChannelID,
			&task.FileName,
			&task.Opacity,
			&task.Status,
			&task.ErrMsg,
			&task.CreatedAt,
			&task.UpdatedAt); err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return tasks, nil
}

func (p TaskRepo) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM tasks
	WHERE task_uid = $1`

	return p.execOne(ctx, query, id)
}

func (p TaskRepo) UpdateStatus(ctx context.Context, id string, newStat model.Status) error {
	query := `UPDATE tasks SET status = $1, updated_at = now() WHERE task_uid = $2`

	return p.execOne(ctx, query, newStat, id)
}

func (p TaskRepo) SaveResult(ctx context.Context, t *model.Task) error {
	query := `UPDATE tasks SET status = $1, updated_at = $2, result_key = $3 WHERE task_uid = $4`

	return p.execOne(ctx, query, t.Status, t.UpdatedAt, t.ResultKey, t.UID)
}

// SaveFailure marks the task failed and appends reason to its error list.
func (p TaskRepo) SaveFailure(ctx context.Context, id string, reason string) error {
	query := `UPDATE tasks SET status = $1, err_msg = err_msg || $2::jsonb, updated_at = now() WHERE task_uid = $3`

	return p.execOne(ctx, query, model.StatusFailed, model.StringSlice{reason}, id)
}

// FetchOrphans returns tasks that were never finished and were not touched for 10 minutes.
func (p TaskRepo) FetchOrphans(ctx context.Context, limit int) ([]string, error) {
	query := `SELECT task_uid
	FROM tasks
	WHERE status IN ($1, $2)
	AND updated_at < now() - interval '10 minutes'
	LIMIT $3`

	rows, err := p.DB.QueryContext(ctx, query, model.StatusCreated, model.StatusInProgress, limit)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := rows.Close(); err != nil {
			log.Printf("Error while closing *sql.Rows after scanning: %v", err)
		}
	}()

	orphans := make([]string, 0, limit)
	for rows.Next() {
		uid := ""
		if err := rows.Scan(&uid); err != nil {
			return nil, err
		}
		orphans = append(orphans, uid)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return orphans, nil
}

func (p TaskRepo) execOne(ctx context.Context, query string, args ...any) error {
	res, err := p.DB.Master.ExecContext(ctx, query, args...)
	if err != nil {
		return err // 500
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrTaskNotFound // 404
	}
	return nil
}
