package http

import (
	"bytes"
	"context"
	"net/http"
	"strconv"

	"github.com/aukilabs/dynbvh/bvh"
	"github.com/aukilabs/dynbvh/scene"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

const (
	DefaultHeatmapSize = 512
)

// DebugInfo is the body returned by HandleDebugInfo.
type DebugInfo struct {
	SceneUUID        string             `json:"scene_uuid"`
	Entities         int                `json:"entities"`
	Tree             bvh.DebugInfo      `json:"tree"`
	Valid            bool               `json:"valid"`
	ValidationError  string             `json:"validation_error,omitempty"`
	LastOptimization bvh.OptimizeReport `json:"last_optimization"`
	LastFrame        scene.FrameStats   `json:"last_frame"`
}

// HandleDebugInfo writes a JSON summary of the tree of the scene owned by r.
func HandleDebugInfo(r *scene.Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var info DebugInfo

		err := r.Do(req.Context(), func(s *scene.Scene) {
			info.SceneUUID = s.UUID
			info.Entities = s.EntityCount()
			info.Tree = s.Tree().DebugInfo()
			info.LastOptimization = s.LastOptimization()

			info.Valid = true
			if err := s.Tree().Validate(); err != nil {
				info.Valid = false
				info.ValidationError = err.Error()
			}
		})
		if err != nil {
			writeError(w, err)
			return
		}
		info.LastFrame = r.LastFrame()

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(info); err != nil {
			logs.Warn(errors.New("writing debug info failed").Wrap(err))
		}
	}
}

// HandleTreePrint writes the tree of the scene owned by r as indented text.
func HandleTreePrint(r *scene.Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var b bytes.Buffer
		var printErr error

		err := r.Do(req.Context(), func(s *scene.Scene) {
			printErr = s.Tree().Print(&b)
		})
		if err == nil {
			err = printErr
		}
		if err != nil {
			writeError(w, err)
			return
		}

		w.Header().Set("Content-Type", "text/plain")
		w.Write(b.Bytes())
	}
}

// HandleHeatmap writes a BMP heatmap of the tree of the scene owned by r. The
// image size is read from the width and height query parameters.
func HandleHeatmap(r *scene.Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		width, err := queryInt(req, "width", DefaultHeatmapSize)
		if err != nil {
			writeError(w, err)
			return
		}
		height, err := queryInt(req, "height", DefaultHeatmapSize)
		if err != nil {
			writeError(w, err)
			return
		}

		var b bytes.Buffer
		var heatmapErr error

		err = r.Do(req.Context(), func(s *scene.Scene) {
			heatmapErr = s.Tree().WriteHeatmap(&b, width, height)
		})
		if err == nil {
			err = heatmapErr
		}
		if err != nil {
			writeError(w, err)
			return
		}

		w.Header().Set("Content-Type", "image/bmp")
		w.Write(b.Bytes())
	}
}

// HandleFrameStream sends the stats of every frame run by r as JSON text
// messages until the connection, ctx or the runner is done. Frames are
// dropped when the connection does not keep up.
func HandleFrameStream(ctx context.Context, r *scene.Runner) websocket.Handler {
	return func(conn *websocket.Conn) {
		defer conn.Close()

		frames := make(chan scene.FrameStats, 32)
		stop := r.HandleFrame(func(f scene.FrameStats) {
			select {
			case frames <- f:
			default:
			}
		})
		defer stop()

		closed := make(chan struct{})
		go func() {
			defer close(closed)

			var msg string
			for websocket.Message.Receive(conn, &msg) == nil {
			}
		}()

		logs.WithTag("remote_addr", conn.Request().RemoteAddr).Debug("frame stream opened")
		defer logs.WithTag("remote_addr", conn.Request().RemoteAddr).Debug("frame stream closed")

		for {
			select {
			case <-ctx.Done():
				return

			case <-r.Done():
				return

			case <-closed:
				return

			case f := <-frames:
				msg, err := json.Marshal(f)
				if err != nil {
					logs.Warn(errors.New("encoding frame stats failed").Wrap(err))
					return
				}

				if err := websocket.Message.Send(conn, string(msg)); err != nil {
					logs.WithTag("remote_addr", conn.Request().RemoteAddr).
						WithTag("error", err.Error()).
						Debug("sending frame stats failed")
					return
				}
			}
		}
	}
}

func queryInt(req *http.Request, key string, defaultValue int) (int, error) {
	s := req.URL.Query().Get(key)
	if s == "" {
		return defaultValue, nil
	}

	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.New("invalid query parameter").
			WithType(ErrTypeBadRequest).
			WithTag("key", key).
			WithTag("value", s).
			Wrap(err)
	}
	return v, nil
}
