package http

import (
	"net/http"

	"github.com/aukilabs/dynbvh/bvh"
	"github.com/aukilabs/dynbvh/scene"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
)

const (
	ErrTypeBadRequest = "http-bad-request"
)

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch errors.Type(err) {
	case ErrTypeBadRequest, bvh.ErrTypeInvalidHeatmapSize:
		status = http.StatusBadRequest

	case scene.ErrTypeRunnerStopped:
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		logs.Warn(errors.New("debug request failed").
			WithTag("status", status).
			Wrap(err))
	}

	http.Error(w, err.Error(), status)
}
