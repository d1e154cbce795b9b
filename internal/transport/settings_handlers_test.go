package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/UnendingLoop/Watermarker/internal/model"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/ginext"
)

func settingsRouter(h *SettingsHandler) *gin.Engine {
	r := gin.New()
	r.PUT("/channels/:server/:channel/watermark", func(c *gin.Context) {
		h.SetWatermark((*ginext.Context)(c))
	})
	r.GET("/channels/:server/:channel/watermark", func(c *gin.Context) {
		h.GetWatermark((*ginext.Context)(c))
	})
	r.PATCH("/channels/:server/:channel/opacity", func(c *gin.Context) {
		h.SetOpacity((*ginext.Context)(c))
	})
	r.DELETE("/channels/:server/:channel/watermark", func(c *gin.Context) {
		h.ClearWatermark((*ginext.Context)(c))
	})
	return r
}

func TestSettingsHandler_SetWatermark(t *testing.T) {
	wm := formFile{field: "watermark", filename: "logo.png", content: []byte("png")}

	tests := []struct {
		name       string
		req        *http.Request
		mock       *mockSettingsService
		wantStatus int
	}{
		{
			name: "success with opacity",
			req:  newMultipartRequest(t, http.MethodPut, "/channels/srv/chn/watermark", map[string]string{"opacity": "40"}, wm),
			mock: &mockSettingsService{
				setWatermarkFn: func(ctx context.Context, d *model.WatermarkData) (*model.ChannelSettings, error) {
					require.Equal(t, "srv", d.ServerID)
					require.Equal(t, "chn", d.ChannelID)
					require.NotNil(t, d.Opacity)
					require.Equal(t, 40, *d.Opacity)
					return &model.ChannelSettings{ServerID: "srv", ChannelID: "chn", Opacity: 40}, nil
				},
			},
			wantStatus: 200,
		},
		{
			name: "success without opacity",
			req:  newMultipartRequest(t, http.MethodPut, "/channels/srv/chn/watermark", nil, wm),
			mock: &mockSettingsService{
				setWatermarkFn: func(ctx context.Context, d *model.WatermarkData) (*model.ChannelSettings, error) {
					require.Nil(t, d.Opacity)
					return &model.ChannelSettings{}, nil
				},
			},
			wantStatus: 200,
		},
		{
			name:       "opacity not a number",
			req:        newMultipartRequest(t, http.MethodPut, "/channels/srv/chn/watermark", map[string]string{"opacity": "half"}, wm),
			mock:       &mockSettingsService{},
			wantStatus: 400,
		},
		{
			name:       "missing file",
			req:        newMultipartRequest(t, http.MethodPut, "/channels/srv/chn/watermark", map[string]string{"opacity": "40"}),
			mock:       &mockSettingsService{},
			wantStatus: 400,
		},
		{
			name: "too large",
			req:  newMultipartRequest(t, http.MethodPut, "/channels/srv/chn/watermark", nil, wm),
			mock: &mockSettingsService{
				setWatermarkFn: func(ctx context.Context, d *model.WatermarkData) (*model.ChannelSettings, error) {
					return nil, model.ErrTooLarge
				},
			},
			wantStatus: 413,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			settingsRouter(NewSettingsHandler(tt.mock)).ServeHTTP(w, tt.req)

			require.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestSettingsHandler_GetWatermark(t *testing.T) {
	tests := []struct {
		name        string
		query       string
		wantPreview int
		err         error
		wantStatus  int
	}{
		{name: "original", wantStatus: 200},
		{name: "preview", query: "?preview=128", wantPreview: 128, wantStatus: 200},
		{name: "bad preview", query: "?preview=big", wantStatus: 400},
		{name: "negative preview", query: "?preview=-5", wantStatus: 400},
		{name: "no watermark", err: model.ErrNoWatermark, wantStatus: 404},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockSettingsService{
				getWatermarkFn: func(ctx context.Context, serverID, channelID string, preview int) (io.ReadCloser, string, error) {
					if tt.err != nil {
						return nil, "", tt.err
					}
					require.Equal(t, tt.wantPreview, preview)
					return io.NopCloser(strings.NewReader("img")), model.PNG, nil
				},
			}

			req := httptest.NewRequest(http.MethodGet, "/channels/srv/chn/watermark"+tt.query, nil)
			w := httptest.NewRecorder()
			settingsRouter(NewSettingsHandler(mock)).ServeHTTP(w, req)

			require.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == 200 {
				require.Equal(t, "img", w.Body.String())
				require.Equal(t, model.PNG, w.Header().Get("Content-Type"))
			}
		})
	}
}

func TestSettingsHandler_SetOpacity(t *testing.T) {
	tests := []struct {
		name       string
		value      string
		err        error
		wantStatus int
	}{
		{name: "success", value: "25", wantStatus: 200},
		{name: "not a number", value: "abc", wantStatus: 400},
		{name: "empty", value: "", wantStatus: 400},
		{name: "out of range", value: "150", err: model.ErrIncorrectOpacity, wantStatus: 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockSettingsService{
				setOpacityFn: func(ctx context.Context, serverID, channelID string, opacity int) (*model.ChannelSettings, error) {
					if tt.err != nil {
						return nil, tt.err
					}
					return &model.ChannelSettings{ServerID: serverID, ChannelID: channelID, Opacity: opacity}, nil
				},
			}

			form := url.Values{"opacity": {tt.value}}
			req := httptest.NewRequest(http.MethodPatch, "/channels/srv/chn/opacity", strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			w := httptest.NewRecorder()
			settingsRouter(NewSettingsHandler(mock)).ServeHTTP(w, req)

			require.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestSettingsHandler_ClearWatermark(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "success", wantStatus: 204},
		{name: "nothing to clear", err: model.ErrNoWatermark, wantStatus: 404},
		{name: "bad channel", err: model.ErrIncorrectChannel, wantStatus: 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockSettingsService{
				clearWatermarkFn: func(ctx context.Context, serverID, channelID string) error {
					return tt.err
				},
			}

			req := httptest.NewRequest(http.MethodDelete, "/channels/srv/chn/watermark", nil)
			w := httptest.NewRecorder()
			settingsRouter(NewSettingsHandler(mock)).ServeHTTP(w, req)

			require.Equal(t, tt.wantStatus, w.Code)
		})
	}
}
