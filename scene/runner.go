package scene

import (
	"context"
	"sync"
	"time"

	"github.com/aukilabs/dynbvh/bvh"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	ErrTypeRunnerStopped = "scene-runner-stopped"
)

// FrameFunc prepares a frame. It runs on the runner goroutine, may mutate the
// scene and returns the camera to cull from with the occlusion tester to use,
// nil to skip the occlusion pass.
type FrameFunc func(s *Scene, frame uint64) (Camera, bvh.OcclusionTester)

type RunnerConfig struct {
	// The duration of a frame.
	FrameDuration time.Duration

	// The duration between each frame summary log.
	LogSummaryInterval time.Duration

	// Called at the beginning of every frame. Defaults to an identity camera
	// without occlusion.
	Frame FrameFunc
}

// FrameStats describes a frame run by a Runner.
type FrameStats struct {
	Frame uint64    `json:"frame"`
	Time  time.Time `json:"time"`

	CullStats
}

// Runner owns a scene and runs its frames on a single goroutine. Every access
// to the scene goes through Do, which makes the runner safe for concurrent
// use.
type Runner struct {
	scene *Scene
	conf  RunnerConfig

	startOnce sync.Once
	ops       chan func()
	done      chan struct{}
	frame     uint64

	frameMutex     sync.RWMutex
	frameHandlerID uint64
	frameHandlers  map[uint64]func(FrameStats)

	lastFrameMutex sync.RWMutex
	lastFrame      FrameStats

	summary frameSummary
}

func NewRunner(s *Scene, conf RunnerConfig) *Runner {
	if conf.FrameDuration == 0 {
		conf.FrameDuration = time.Millisecond * 15
	}
	if conf.LogSummaryInterval == 0 {
		conf.LogSummaryInterval = time.Minute
	}
	if conf.Frame == nil {
		conf.Frame = func(*Scene, uint64) (Camera, bvh.OcclusionTester) {
			return Camera{
				Projection: mgl32.Ident4(),
				View:       mgl32.Ident4(),
			}, nil
		}
	}

	return &Runner{
		scene:         s,
		conf:          conf,
		ops:           make(chan func()),
		done:          make(chan struct{}),
		frameHandlers: make(map[uint64]func(FrameStats)),
	}
}

// Run runs frames until ctx is done. It must be called once; later calls
// return immediately.
func (r *Runner) Run(ctx context.Context) {
	r.startOnce.Do(func() {
		defer close(r.done)

		frameTicker := time.NewTicker(r.conf.FrameDuration)
		defer frameTicker.Stop()

		summaryTicker := time.NewTicker(r.conf.LogSummaryInterval)
		defer summaryTicker.Stop()

		logs.WithTag("scene_uuid", r.scene.UUID).
			WithTag("frame_duration", r.conf.FrameDuration).
			Info("starting scene runner")

		for {
			select {
			case <-ctx.Done():
				r.logSummary()
				logs.WithTag("scene_uuid", r.scene.UUID).
					WithTag("frames", r.frame).
					Info("stopping scene runner")
				return

			case op := <-r.ops:
				op()

			case <-frameTicker.C:
				r.runFrame()

			case <-summaryTicker.C:
				r.logSummary()
			}
		}
	})
}

// Done returns a channel closed when Run returned.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

// Do runs fn on the runner goroutine, between two frames, and waits for it to
// return.
func (r *Runner) Do(ctx context.Context, fn func(s *Scene)) error {
	done := make(chan struct{})
	op := func() {
		defer close(done)
		fn(r.scene)
	}

	select {
	case r.ops <- op:
		<-done
		return nil

	case <-r.done:
		return errors.New("scene runner is stopped").
			WithType(ErrTypeRunnerStopped).
			WithTag("scene_uuid", r.scene.UUID)

	case <-ctx.Done():
		return errors.New("waiting for the scene runner failed").
			WithTag("scene_uuid", r.scene.UUID).
			Wrap(ctx.Err())
	}
}

// HandleFrame registers a handler called with the stats of every frame. It
// runs on the runner goroutine and must not block.
func (r *Runner) HandleFrame(h func(FrameStats)) (cancel func()) {
	r.frameMutex.Lock()
	defer r.frameMutex.Unlock()

	r.frameHandlerID++
	id := r.frameHandlerID
	r.frameHandlers[id] = h

	return func() {
		r.frameMutex.Lock()
		defer r.frameMutex.Unlock()

		delete(r.frameHandlers, id)
	}
}

// LastFrame returns the stats of the last frame.
func (r *Runner) LastFrame() FrameStats {
	r.lastFrameMutex.RLock()
	defer r.lastFrameMutex.RUnlock()

	return r.lastFrame
}

func (r *Runner) runFrame() {
	r.frame++

	cam, occluder := r.conf.Frame(r.scene, r.frame)
	_, cull := r.scene.Cull(cam, occluder)

	stats := FrameStats{
		Frame:     r.frame,
		Time:      time.Now(),
		CullStats: cull,
	}

	r.lastFrameMutex.Lock()
	r.lastFrame = stats
	r.lastFrameMutex.Unlock()

	r.summary.add(stats)
	instrumentFrame()

	r.frameMutex.RLock()
	for _, h := range r.frameHandlers {
		h(stats)
	}
	r.frameMutex.RUnlock()
}

type frameSummary struct {
	frames         int
	visible        int
	truncated      int
	maxCullLatency time.Duration
}

func (s *frameSummary) add(stats FrameStats) {
	s.frames++
	s.visible += stats.Visible
	if stats.Truncated {
		s.truncated++
	}
	if stats.Duration > s.maxCullLatency {
		s.maxCullLatency = stats.Duration
	}
}

func (r *Runner) logSummary() {
	if r.summary.frames == 0 {
		return
	}

	logs.WithTag("scene_uuid", r.scene.UUID).
		WithTag("time_interval", r.conf.LogSummaryInterval).
		WithTag("frames", r.summary.frames).
		WithTag("entities", r.scene.EntityCount()).
		WithTag("avg_visible", r.summary.visible/r.summary.frames).
		WithTag("truncated_frames", r.summary.truncated).
		WithTag("max_cull_latency", r.summary.maxCullLatency).
		Info("frame summary")

	r.summary = frameSummary{}
}
