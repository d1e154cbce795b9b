// Package storage connects the app to the object storage holding sources, watermarks and results
package storage

import (
	"context"
	"log"
	"time"

	"github.com/UnendingLoop/Watermarker/internal/storage/miniostorage"
	"github.com/wb-go/wbf/config"
)

// Object key layout.
const (
	SourcePrefix     = "sources/"
	OverlayPrefix    = "overlays/"
	WatermarkPrefix  = "watermarks/"
	ResultPrefix     = "results/"
	QuarantinePrefix = "quarantine/"
)

// NewImgStorage blocks until the storage is reachable or ctx is done.
func NewImgStorage(ctx context.Context, cfg *config.Config, delay time.Duration) *miniostorage.MinioImageStorage {
	for {
		log.Println("Connecting to IMG-storage...")
		client, err := miniostorage.NewMinioClient(ctx, cfg)
		if err == nil {
			log.Println("Successfully connected IMG-storage!")
			return client
		}
		log.Printf("Failed to init connection to IMG-storage: %v\nNext retry in %v...", err, delay)

		select {
		case <-ctx.Done():
			log.Fatalln("IMG-storage connection canceled. Exiting...")
		case <-time.After(delay):
		}
	}
}
