package scene

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aukilabs/dynbvh/bvh"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

func TestRunner(t *testing.T) {
	t.Run("frames are run and reported", func(t *testing.T) {
		r := NewRunner(New(Config{}), RunnerConfig{
			FrameDuration: time.Millisecond,
		})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go r.Run(ctx)

		var e *Entity
		err := r.Do(ctx, func(s *Scene) {
			e = s.Spawn(cube(mgl32.Vec3{}, 0.25), "a")
		})
		require.NoError(t, err)
		require.NotNil(t, e)

		frames := make(chan FrameStats, 1)
		stop := r.HandleFrame(func(f FrameStats) {
			select {
			case frames <- f:
			default:
			}
		})

		select {
		case f := <-frames:
			require.NotZero(t, f.Frame)
			require.Equal(t, 1, f.Entities)
			require.Equal(t, 1, f.Visible)

		case <-time.After(time.Second * 5):
			require.FailNow(t, "no frame reported")
		}

		stop()
		stop()

		cancel()
		<-r.Done()
		require.NotZero(t, r.LastFrame().Frame)
	})

	t.Run("do after stop", func(t *testing.T) {
		r := NewRunner(New(Config{}), RunnerConfig{})

		ctx, cancel := context.WithCancel(context.Background())
		go r.Run(ctx)
		cancel()
		<-r.Done()

		called := false
		err := r.Do(context.Background(), func(*Scene) {
			called = true
		})
		require.Error(t, err)
		require.True(t, errors.IsType(err, ErrTypeRunnerStopped))
		require.False(t, called)
	})

	t.Run("do with a canceled context", func(t *testing.T) {
		r := NewRunner(New(Config{}), RunnerConfig{})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := r.Do(ctx, func(*Scene) {})
		require.Error(t, err)
		require.False(t, errors.IsType(err, ErrTypeRunnerStopped))
	})

	t.Run("run is called once", func(t *testing.T) {
		r := NewRunner(New(Config{}), RunnerConfig{})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		r.Run(ctx)
		r.Run(ctx)
		<-r.Done()
	})
}

func TestRunnerFrame(t *testing.T) {
	var calls []uint64
	s := New(Config{})
	s.Spawn(cube(mgl32.Vec3{}, 0.25), nil)
	s.Spawn(cube(mgl32.Vec3{50, 0, 0}, 0.25), nil)

	r := NewRunner(s, RunnerConfig{
		Frame: func(s *Scene, frame uint64) (Camera, bvh.OcclusionTester) {
			calls = append(calls, frame)
			return testCamera(), nil
		},
	})

	var stats []FrameStats
	r.HandleFrame(func(f FrameStats) {
		stats = append(stats, f)
	})

	r.runFrame()
	r.runFrame()
	require.Equal(t, []uint64{1, 2}, calls)
	require.Len(t, stats, 2)
	require.Equal(t, uint64(2), stats[1].Frame)
	require.Equal(t, 2, stats[1].Entities)
	require.Equal(t, 1, stats[1].Visible)
	require.Equal(t, stats[1], r.LastFrame())
}

func TestRunnerLogSummary(t *testing.T) {
	var mutex sync.Mutex
	var b strings.Builder

	logs.SetInlineEncoder()
	logs.SetLogger(func(e logs.Entry) {
		mutex.Lock()
		defer mutex.Unlock()
		fmt.Fprint(&b, e)
	})
	t.Cleanup(func() {
		logs.SetLogger(func(logs.Entry) {})
	})

	s := New(Config{})
	s.Spawn(cube(mgl32.Vec3{}, 0.25), nil)

	r := NewRunner(s, RunnerConfig{})
	r.runFrame()
	r.runFrame()
	r.logSummary()

	mutex.Lock()
	out := b.String()
	b.Reset()
	mutex.Unlock()

	require.Contains(t, out, "frame summary")
	require.Contains(t, out, `"frames":2`)
	require.Contains(t, out, `"entities":1`)
	require.Contains(t, out, `"avg_visible":1`)
	require.Zero(t, r.summary.frames)

	r.logSummary()

	mutex.Lock()
	defer mutex.Unlock()
	require.Empty(t, b.String())
}

func TestRunnerHandleFrame(t *testing.T) {
	r := NewRunner(New(Config{}), RunnerConfig{})

	var first, second, third int
	cancelFirst := r.HandleFrame(func(FrameStats) { first++ })
	r.HandleFrame(func(FrameStats) { second++ })

	cancelFirst()
	cancelFirst()

	r.HandleFrame(func(FrameStats) { third++ })
	r.runFrame()

	require.Zero(t, first)
	require.Equal(t, 1, second)
	require.Equal(t, 1, third)
	require.Len(t, r.frameHandlers, 2)
}
