// Package model provides data-structs for internal app-usage
package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusCreated    Status = "created"
	StatusInProgress Status = "in_progress"
	StatusFailed     Status = "failed"
	StatusDone       Status = "done"
)

//---------------------

// Task is one watermarking job: a source image posted to a channel, processed by a worker.
type Task struct {
	UID          uuid.UUID   `json:"uid"`
	ServerID     string      `json:"server_id"`
	ChannelID    string      `json:"channel_id"`
	FileName     string      `json:"file_name"`
	SourceKey    string      `json:"-"`
	WatermarkKey string      `json:"-"`
	ResultKey    string      `json:"-"`
	Opacity      int         `json:"opacity"`
	Status       Status      `json:"status,omitempty"`
	ErrMsg       StringSlice `json:"error,omitempty"`
	CreatedAt    *time.Time  `json:"created_at,omitempty"`
	UpdatedAt    *time.Time  `json:"updated_at,omitempty"`
}

// ChannelSettings is the watermark configuration of one channel on one server.
// An empty WatermarkKey means the channel has no active watermark.
type ChannelSettings struct {
	ServerID       string     `json:"server_id"`
	ChannelID      string     `json:"channel_id"`
	WatermarkKey   string     `json:"-"`
	WatermarkCType string     `json:"content_type,omitempty"`
	Opacity        int        `json:"opacity"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`
}

func (s *ChannelSettings) HasWatermark() bool {
	return s != nil && s.WatermarkKey != ""
}

//-------------------

type ListRequest struct {
	Page      int    `form:"page"`
	Limit     int    `form:"limit"`
	Sort      string `form:"sort"`
	Order     string `form:"order"`
	ServerID  string `form:"server_id"`
	ChannelID string `form:"channel_id"`
}

const (
	ByUUID    = "uid"
	ByCreated = "created"
	OrderASC  = "ascend"
	OrderDESC = "descend"
)

type TaskCreateData struct {
	ServerID  string
	ChannelID string
	FileName  string
	File      io.Reader
	Size      int64
}

type WatermarkData struct {
	ServerID  string
	ChannelID string
	File      io.Reader
	Size      int64
	Opacity   *int
}

const (
	MinOpacity = 1
	MaxOpacity = 100
)

// ------------------

var (
	ErrCommon500           error = errors.New("something went wrong. Try again later")            // 500
	ErrIncorrectQuery      error = errors.New("incorrect query parameters")                       // 400
	ErrIncorrectID         error = errors.New("incorrect task UUID")                              // 400
	ErrIncorrectChannel    error = errors.New("incorrect server or channel id")                   // 400
	ErrTaskNotFound        error = errors.New("specified task UUID doesn't exist")                // 404
	ErrResultNotReady      error = errors.New("requested image is not processed yet")             // 404
	ErrNoWatermark         error = errors.New("no active watermark for this channel")             // 404
	ErrEmptySource         error = errors.New("empty/incorrect source image provided")            // 400
	ErrEmptyWMark          error = errors.New("empty/incorrect watermark provided")               // 400
	ErrIncorrectOpacity    error = errors.New("opacity must be an integer from 1 to 100")         // 400
	ErrUnsupportedWMFormat error = errors.New("unsupported watermark-image format")               // 400
	ErrUnsupportedFormat   error = errors.New("unsupported base image format")                    // 400
	ErrTooLarge            error = errors.New("image is too large")                               // 413
	ErrTaskInProgress      error = errors.New("task is being processed, try again after it ends") // 409
)

//--------------------

const (
	JPEG  = "image/jpeg"
	PNG   = "image/png"
	GIF   = "image/gif"
	BMP   = "image/bmp"
	TIFF  = "image/tiff"
	WEBP  = "image/webp"
	Octet = "application/octet-stream"
)

// CTypeByExt maps a lower-cased file extension to the content type results are stored with.
var CTypeByExt = map[string]string{
	".jpg":  JPEG,
	".jpeg": JPEG,
	".png":  PNG,
	".apng": PNG,
	".gif":  GIF,
	".bmp":  BMP,
	".tif":  TIFF,
	".tiff": TIFF,
	".webp": WEBP,
}

// WatermarkFormats maps a format name reported by image.DecodeConfig to the extension
// watermarks of that format are stored with.
var WatermarkFormats = map[string]string{
	"png":  ".png",
	"jpeg": ".jpg",
	"gif":  ".gif",
	"bmp":  ".bmp",
	"tiff": ".tiff",
	"webp": ".webp",
}

//--------------------

type StringSlice []string

func (s *StringSlice) Scan(value any) error {
	if value == nil {
		*s = []string{}
		return nil
	}

	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("invalid type for StringSlice")
	}

	if err := json.Unmarshal(b, s); err != nil {
		return fmt.Errorf("failed to unmarshal JSONB to []StringSlice: %w", err)
	}
	return nil
}

func (s StringSlice) Value() (driver.Value, error) {
	if len(s) == 0 || s == nil {
		return []byte(`[]`), nil
	}
	res, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal []StringSlice to JSONB: %w", err)
	}

	return res, nil
}
