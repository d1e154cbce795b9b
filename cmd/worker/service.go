package main

import (
	"context"

	"github.com/UnendingLoop/Watermarker/internal/model"
)

type TaskWorkerService interface {
	UpdateStatus(ctx context.Context, id string, newStat model.Status) error
	SaveResult(ctx context.Context, res *model.Task) error
	SaveFailure(ctx context.Context, id string, reason string) error
	Get(ctx context.Context, id string) (*model.Task, error)
}
