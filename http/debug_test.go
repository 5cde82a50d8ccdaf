package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aukilabs/dynbvh/bvh"
	"github.com/aukilabs/dynbvh/scene"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
	"golang.org/x/net/websocket"
)

func TestHandleDebugInfo(t *testing.T) {
	r := newTestRunner(t)

	w := httptest.NewRecorder()
	HandleDebugInfo(r)(w, httptest.NewRequest(http.MethodGet, "/debug/bvh", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var info DebugInfo
	err := json.Unmarshal(w.Body.Bytes(), &info)
	require.NoError(t, err)
	require.NotEmpty(t, info.SceneUUID)
	require.Equal(t, 3, info.Entities)
	require.Equal(t, 3, info.Tree.Leaves)
	require.Equal(t, 5, info.Tree.Nodes)
	require.True(t, info.Valid)
	require.Empty(t, info.ValidationError)
}

func TestHandleTreePrint(t *testing.T) {
	r := newTestRunner(t)

	w := httptest.NewRecorder()
	HandleTreePrint(r)(w, httptest.NewRequest(http.MethodGet, "/debug/bvh/tree", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 3, strings.Count(w.Body.String(), "leaf "))
	require.Equal(t, 2, strings.Count(w.Body.String(), "node "))
}

func TestHandleHeatmap(t *testing.T) {
	r := newTestRunner(t)

	t.Run("heatmap", func(t *testing.T) {
		w := httptest.NewRecorder()
		HandleHeatmap(r)(w, httptest.NewRequest(http.MethodGet, "/debug/bvh/heatmap?width=64&height=32", nil))
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "image/bmp", w.Header().Get("Content-Type"))

		conf, err := bmp.DecodeConfig(w.Body)
		require.NoError(t, err)
		require.Equal(t, 64, conf.Width)
		require.Equal(t, 32, conf.Height)
	})

	t.Run("default size", func(t *testing.T) {
		w := httptest.NewRecorder()
		HandleHeatmap(r)(w, httptest.NewRequest(http.MethodGet, "/debug/bvh/heatmap", nil))
		require.Equal(t, http.StatusOK, w.Code)

		conf, err := bmp.DecodeConfig(w.Body)
		require.NoError(t, err)
		require.Equal(t, DefaultHeatmapSize, conf.Width)
		require.Equal(t, DefaultHeatmapSize, conf.Height)
	})

	t.Run("invalid parameter", func(t *testing.T) {
		w := httptest.NewRecorder()
		HandleHeatmap(r)(w, httptest.NewRequest(http.MethodGet, "/debug/bvh/heatmap?width=big", nil))
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid size", func(t *testing.T) {
		w := httptest.NewRecorder()
		HandleHeatmap(r)(w, httptest.NewRequest(http.MethodGet, "/debug/bvh/heatmap?width=0", nil))
		require.Equal(t, http.StatusBadRequest, w.Code)

		w = httptest.NewRecorder()
		HandleHeatmap(r)(w, httptest.NewRequest(http.MethodGet, "/debug/bvh/heatmap?height=100000", nil))
		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestDebugHandlersWithStoppedRunner(t *testing.T) {
	r := scene.NewRunner(scene.New(scene.Config{}), scene.RunnerConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Run(ctx)

	handlers := map[string]http.HandlerFunc{
		"/debug/bvh":         HandleDebugInfo(r),
		"/debug/bvh/tree":    HandleTreePrint(r),
		"/debug/bvh/heatmap": HandleHeatmap(r),
	}

	for path, h := range handlers {
		t.Run(path, func(t *testing.T) {
			w := httptest.NewRecorder()
			h(w, httptest.NewRequest(http.MethodGet, path, nil))
			require.Equal(t, http.StatusServiceUnavailable, w.Code)
		})
	}
}

func TestHandleFrameStream(t *testing.T) {
	r := newTestRunner(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := httptest.NewServer(HandleFrameStream(ctx, r))
	defer server.Close()

	conn, err := websocket.Dial(strings.ReplaceAll(server.URL, "http://", "ws://"), "", "http://localhost")
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(time.Second * 5))

	var msg string
	err = websocket.Message.Receive(conn, &msg)
	require.NoError(t, err)

	var frame scene.FrameStats
	err = json.Unmarshal([]byte(msg), &frame)
	require.NoError(t, err)
	require.NotZero(t, frame.Frame)
	require.Equal(t, 3, frame.Entities)
}

// newTestRunner returns a running runner owning a scene with three entities
// in front of an identity camera.
func newTestRunner(t *testing.T) *scene.Runner {
	s := scene.New(scene.Config{})
	for i := 0; i < 3; i++ {
		s.Spawn(bvh.BoxFromCenter(mgl32.Vec3{float32(i)*0.1 - 0.1, 0, 0}, mgl32.Vec3{0.05, 0.05, 0.05}), i)
	}

	r := scene.NewRunner(s, scene.RunnerConfig{
		FrameDuration: time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)

	t.Cleanup(func() {
		cancel()
		<-r.Done()
	})
	return r
}
