package wmpostgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/UnendingLoop/Watermarker/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/dbpg"
)

func newDBWithMock(t *testing.T) (*dbpg.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return &dbpg.DB{Master: db}, mock
}

var taskColumns = []string{
	"task_uid", "server_id", "channel_id", "file_name", "source_key", "wm_key", "result_key",
	"opacity", "status", "err_msg", "created_at", "updated_at",
}

// CREATE - SUCCESS
func TestTaskRepo_Create_OK(t *testing.T) {
	db, mock := newDBWithMock(t)
	repo := TaskRepo{DB: db}

	ctime := time.Now()
	task := &model.Task{
		UID:          uuid.New(),
		ServerID:     "srv",
		ChannelID:    "chn",
		FileName:     "cat.png",
		SourceKey:    "sources/x.png",
		WatermarkKey: "overlays/x.png",
		Opacity:      15,
		Status:       model.StatusCreated,
		CreatedAt:    &ctime,
	}

	mock.ExpectExec(`INSERT INTO tasks`).
		WithArgs(task.UID, task.ServerID, task.ChannelID, task.FileName, task.SourceKey, task.WatermarkKey,
			task.ResultKey, task.Opacity, task.Status, sqlmock.AnyArg(), task.CreatedAt, task.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), task))
	require.NoError(t, mock.ExpectationsWereMet())
}

// GET - SUCCESS
func TestTaskRepo_Get_OK(t *testing.T) {
	db, mock := newDBWithMock(t)
	repo := TaskRepo{DB: db}

	id := uuid.New().String()
	rows := sqlmock.NewRows(taskColumns).AddRow(
		id, "srv", "chn", "cat.gif", "sources/a.gif", "overlays/a.png", "",
		40, model.StatusFailed, []byte(`["decode failed"]`), time.Now(), time.Now(),
	)

	mock.ExpectQuery(`SELECT task_uid`).
		WithArgs(id).
		WillReturnRows(rows)

	task, err := repo.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, id, task.UID.String())
	require.Equal(t, 40, task.Opacity)
	require.Equal(t, model.StringSlice{"decode failed"}, task.ErrMsg)
}

// GET - NOT FOUND
func TestTaskRepo_Get_NotFound(t *testing.T) {
	db, mock := newDBWithMock(t)
	repo := TaskRepo{DB: db}

	mock.ExpectQuery(`SELECT task_uid`).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), uuid.New().String())
	require.ErrorIs(t, err, model.ErrTaskNotFound)
}

// GETLIST - SUCCESS
func TestTaskRepo_GetList(t *testing.T) {
	listColumns := []string{
		"task_uid", "server_id", "channel_id", "file_name", "opacity", "status", "err_msg", "created_at", "updated_at",
	}

	tests := []struct {
		name     string
		req      *model.ListRequest
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "no filters",
			req:      &model.ListRequest{Page: 1, Limit: 2, Sort: "created_at", Order: "DESC"},
			wantSQL:  `FROM tasks\s+ORDER BY created_at DESC\s+LIMIT \$1\s+OFFSET \$2`,
			wantArgs: []any{2, 0},
		},
		{
			name:     "server and channel filter",
			req:      &model.ListRequest{Page: 3, Limit: 10, Sort: "task_uid", Order: "ASC", ServerID: "s", ChannelID: "c"},
			wantSQL:  `WHERE server_id = \$1 AND channel_id = \$2\s+ORDER BY task_uid ASC\s+LIMIT \$3\s+OFFSET \$4`,
			wantArgs: []any{"s", "c", 10, 20},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newDBWithMock(t)
			repo := TaskRepo{DB: db}

			rows := sqlmock.NewRows(listColumns).
				AddRow(uuid.New(), "s", "c", "a.png", 15, model.StatusDone, nil, time.Now(), time.Now()).
				AddRow(uuid.New(), "s", "c", "b.gif", 20, model.StatusCreated, nil, time.Now(), time.Now())

			args := make([]driver.Value, 0, len(tt.wantArgs))
			for _, a := range tt.wantArgs {
				args = append(args, a)
			}
			mock.ExpectQuery(tt.wantSQL).
				WithArgs(args...).
				WillReturnRows(rows)

			res, err := repo.GetList(context.Background(), tt.req)
			require.NoError(t, err)
			require.Len(t, res, 2)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

// GETLIST - DB ERROR
func TestTaskRepo_GetList_Error(t *testing.T) {
	db, mock := newDBWithMock(t)
	repo := TaskRepo{DB: db}

	mock.ExpectQuery(`SELECT task_uid`).WillReturnError(errors.New("db down"))

	_, err := repo.GetList(context.Background(), &model.ListRequest{Page: 1, Limit: 5, Sort: "created_at", Order: "DESC"})
	require.Error(t, err)
}

func TestTaskRepo_Writes(t *testing.T) {
	id := uuid.New()
	now := time.Now()

	tests := []struct {
		name     string
		sql      string
		affected int64
		execErr  error
		call     func(r TaskRepo) error
		wantErr  error
	}{
		{
			name:     "delete ok",
			sql:      `DELETE FROM tasks`,
			affected: 1,
			call:     func(r TaskRepo) error { return r.Delete(context.Background(), id.String()) },
		},
		{
			name:    "delete not found",
			sql:     `DELETE FROM tasks`,
			call:    func(r TaskRepo) error { return r.Delete(context.Background(), id.String()) },
			wantErr: model.ErrTaskNotFound,
		},
		{
			name:     "update status ok",
			sql:      `UPDATE tasks SET status`,
			affected: 1,
			call: func(r TaskRepo) error {
				return r.UpdateStatus(context.Background(), id.String(), model.StatusInProgress)
			},
		},
		{
			name:    "update status db error",
			sql:     `UPDATE tasks SET status`,
			execErr: errors.New("db down"),
			call: func(r TaskRepo) error {
				return r.UpdateStatus(context.Background(), id.String(), model.StatusInProgress)
			},
			wantErr: errors.New("db down"),
		},
		{
			name:     "save result ok",
			sql:      `UPDATE tasks SET status = \$1, updated_at = \$2, result_key`,
			affected: 1,
			call: func(r TaskRepo) error {
				return r.SaveResult(context.Background(), &model.Task{UID: id, Status: model.StatusDone, ResultKey: "results/x.png", UpdatedAt: &now})
			},
		},
		{
			name:     "save failure appends message",
			sql:      `err_msg = err_msg \|\| \$2::jsonb`,
			affected: 1,
			call: func(r TaskRepo) error {
				return r.SaveFailure(context.Background(), id.String(), "decode: broken")
			},
		},
		{
			name: "save failure not found",
			sql:  `err_msg = err_msg`,
			call: func(r TaskRepo) error {
				return r.SaveFailure(context.Background(), id.String(), "decode: broken")
			},
			wantErr: model.ErrTaskNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newDBWithMock(t)
			repo := TaskRepo{DB: db}

			exp := mock.ExpectExec(tt.sql)
			if tt.execErr != nil {
				exp.WillReturnError(tt.execErr)
			} else {
				exp.WillReturnResult(sqlmock.NewResult(0, tt.affected))
			}

			err := tt.call(repo)
			switch {
			case tt.wantErr == nil:
				require.NoError(t, err)
			case errors.Is(tt.wantErr, model.ErrTaskNotFound):
				require.ErrorIs(t, err, model.ErrTaskNotFound)
			default:
				require.EqualError(t, err, tt.wantErr.Error())
			}
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

// FETCHORPHANS - SUCCESS
func TestTaskRepo_FetchOrphans(t *testing.T) {
	db, mock := newDBWithMock(t)
	repo := TaskRepo{DB: db}

	a, b := uuid.New().String(), uuid.New().String()
	mock.ExpectQuery(`SELECT task_uid\s+FROM tasks\s+WHERE status IN`).
		WithArgs(model.StatusCreated, model.StatusInProgress, 20).
		WillReturnRows(sqlmock.NewRows([]string{"task_uid"}).AddRow(a).AddRow(b))

	res, err := repo.FetchOrphans(context.Background(), 20)
	require.NoError(t, err)
	require.Equal(t, []string{a, b}, res)
}
