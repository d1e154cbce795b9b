package worker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/UnendingLoop/Watermarker/internal/model"
	kafkago "github.com/segmentio/kafka-go"
)

type mockWorkerService struct {
	getFn         func(ctx context.Context, id string) (*model.Task, error)
	updateFn      func(ctx context.Context, id string, st model.Status) error
	saveResultFn  func(ctx context.Context, t *model.Task) error
	saveFailureFn func(ctx context.Context, id string, reason string) error
}

func (m *mockWorkerService) Get(ctx context.Context, id string) (*model.Task, error) {
	return m.getFn(ctx, id)
}

func (m *mockWorkerService) UpdateStatus(ctx context.Context, id string, st model.Status) error {
	return m.updateFn(ctx, id, st)
}

func (m *mockWorkerService) SaveResult(ctx context.Context, t *model.Task) error {
	return m.saveResultFn(ctx, t)
}

func (m *mockWorkerService) SaveFailure(ctx context.Context, id string, reason string) error {
	return m.saveFailureFn(ctx, id, reason)
}

//----------------------------------

// memStorage keeps objects in memory, keyed like the bucket.
type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	ctypes  map[string]string
	getErr  error
}

func newMemStorage() *memStorage {
	return &memStorage{objects: map[string][]byte{}, ctypes: map[string]string{}}
}

func (m *memStorage) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, "", m.getErr
	}
	data, ok := m.objects[key]
	if !ok {
		return nil, "", errors.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(data)), m.ctypes[key], nil
}

func (m *memStorage) Put(ctx context.Context, key string, size int64, ct string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return errors.New("size mismatch")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	m.ctypes[key] = ct
	return nil
}

func (m *memStorage) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memStorage) Copy(ctx context.Context, src, dst string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[src]
	if !ok {
		return errors.New("object not found")
	}
	m.objects[dst] = data
	m.ctypes[dst] = m.ctypes[src]
	return nil
}

func (m *memStorage) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

//----------------------------------

type engineFunc func(basePath, overlayPath, outputDir string, opacity float64) (string, error)

func (f engineFunc) ProcessImages(basePath, overlayPath, outputDir string, opacity float64) (string, error) {
	return f(basePath, overlayPath, outputDir, opacity)
}

type mockCommitter struct {
	mu        sync.Mutex
	committed []string
}

func (m *mockCommitter) Commit(ctx context.Context, msg kafkago.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.committed = append(m.committed, string(msg.Key))
	return nil
}
