// Package service provides business-logic for the app
package service

import (
	"context"
	"io"
	"time"

	"github.com/wb-go/wbf/retry"
)

// TaskPublisher - контракт для работы с очередью
type TaskPublisher interface {
	SendWithRetry(ctx context.Context, strategy retry.Strategy, key []byte, v []byte) error
}

// ImageStorage - контракт для работы с хранилищем
type ImageStorage interface {
	Delete(ctx context.Context, key string) error
	Get(ctx context.Context, key string) (output io.ReadCloser, ctype string, err error)
	Put(ctx context.Context, key string, size int64, contentType string, r io.Reader) error
	Copy(ctx context.Context, srcKey, dstKey string) error
}

// FormatChecker tells whether the engine can watermark a file with this name.
type FormatChecker interface {
	Supports(name string) bool
}

// Previewer renders a watermark preview as PNG.
type Previewer interface {
	Preview(r io.Reader, size int) (io.Reader, int64, error)
}

var retryStrategy = retry.Strategy{
	Attempts: 5,
	Delay:    3 * time.Second,
	Backoff:  1.5,
}
