package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"reflect"
	"syscall"
	"time"

	"github.com/aukilabs/dynbvh/bvh"
	"github.com/aukilabs/dynbvh/featureflag"
	dynbvhhttp "github.com/aukilabs/dynbvh/http"
	"github.com/aukilabs/dynbvh/hiz"
	"github.com/aukilabs/dynbvh/scene"
	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/events"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/go-tooling/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

var (
	// The dynbvhd version number. Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "dynbvhd_info",
		Help:        "Dynbvhd information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
)

// This will effectively disable obfuscation of the config struct. Without it, the keys would get obfuscated causing the cli package to generate garbled command-line options.
// https://github.com/burrowers/garble/issues/403
var _ = reflect.TypeOf(config{})

type config struct {
	AdminAddr          string        `cli:""        env:"DYNBVHD_ADMIN_ADDR"            help:"Admin listening address."`
	LogLevel           string        `cli:""        env:"DYNBVHD_LOG_LEVEL"             help:"Log level (debug|info|warning|error)."`
	LogIndent          bool          `cli:""        env:"DYNBVHD_LOG_INDENT"            help:"Indent logs."`
	FrameDuration      time.Duration `cli:",hidden" env:"DYNBVHD_FRAME_DURATION"        help:"The duration of a scene frame."`
	LogSummaryInterval time.Duration `cli:",hidden" env:"DYNBVHD_LOG_SUMMARY_INTERVAL"  help:"The duration between each frame summary log."`
	Scene              sceneConfig   `cli:",hidden" env:"-"                             help:"Scene configuration."`
	HiZ                hizConfig     `cli:",hidden" env:"-"                             help:"Hierarchical depth buffer configuration."`
	Events             eventsConfig  `cli:",hidden" env:"-"                             help:"Event pusher configuration."`
	FeatureFlags       []string      `cli:",hidden" env:"DYNBVHD_FEATURE_FLAGS"         help:"Comma separated feature flags"`
	Version            bool          `cli:""        env:"-"                             help:"Show version."`
	Help               bool          `cli:""        env:"-"                             help:"Show help."`
}

type sceneConfig struct {
	Entities           int    `cli:",hidden" env:"DYNBVHD_SCENE_ENTITIES"            help:"The number of simulated entities."`
	Extent             int    `cli:",hidden" env:"DYNBVHD_SCENE_EXTENT"              help:"The half size in meters of the cube where entities move."`
	MaxSpeed           int    `cli:",hidden" env:"DYNBVHD_SCENE_MAX_SPEED"           help:"The maximum entity speed in meters per second."`
	MaxEntitySize      int    `cli:",hidden" env:"DYNBVHD_SCENE_MAX_ENTITY_SIZE"     help:"The maximum entity size in centimeters."`
	MarginCm           int    `cli:",hidden" env:"DYNBVHD_SCENE_MARGIN_CM"           help:"The proxy box margin in centimeters."`
	MaxVisible         int    `cli:",hidden" env:"DYNBVHD_SCENE_MAX_VISIBLE"         help:"The capacity of the visible entity buffer."`
	OptimizeEvery      int    `cli:",hidden" env:"DYNBVHD_SCENE_OPTIMIZE_EVERY"      help:"The number of tree mutations between two optimizations."`
	OptimizeIterations int    `cli:",hidden" env:"DYNBVHD_SCENE_OPTIMIZE_ITERATIONS" help:"The maximum number of sweeps of an optimization."`
	ChurnEvery         int    `cli:",hidden" env:"DYNBVHD_SCENE_CHURN_EVERY"         help:"The number of frames between two entity respawns, 0 to disable."`
	Heuristic          string `cli:",hidden" env:"DYNBVHD_SCENE_HEURISTIC"           help:"Insertion heuristic (branch_and_bound|global|balanced|root)."`
	Seed               int    `cli:",hidden" env:"DYNBVHD_SCENE_SEED"                help:"The random seed of the simulation."`
}

type hizConfig struct {
	Width  int `cli:",hidden" env:"DYNBVHD_HIZ_WIDTH"  help:"The depth buffer width, 0 to disable occlusion culling."`
	Height int `cli:",hidden" env:"DYNBVHD_HIZ_HEIGHT" help:"The depth buffer height, 0 to disable occlusion culling."`
}

type eventsConfig struct {
	Endpoint      string        `cli:",hidden" env:"DYNBVHD_EVENTS_ENDPOINT"       help:"Endpoint to where events are pushed."`
	FlushInterval time.Duration `cli:",hidden" env:"DYNBVHD_EVENTS_FLUSH_INTERVAL" help:"The duration between each event flush."`
	BatchSize     int           `cli:",hidden" env:"DYNBVHD_EVENTS_BATCH_SIZE"     help:"The maximum number of events sent at once."`
	QueueSize     int           `cli:",hidden" env:"DYNBVHD_EVENTS_QUEUE_SIZE"     help:"The size of the queue where events are stored."`
}

func defaultConfig() config {
	return config{
		AdminAddr:          ":18190",
		LogLevel:           logs.InfoLevel.String(),
		FrameDuration:      time.Millisecond * 15,
		LogSummaryInterval: time.Minute,
		Scene: sceneConfig{
			Entities:           10000,
			Extent:             100,
			MaxSpeed:           5,
			MaxEntitySize:      200,
			MarginCm:           scene.DefaultMargin * 100,
			MaxVisible:         scene.DefaultMaxVisible,
			OptimizeEvery:      scene.DefaultOptimizeEvery,
			OptimizeIterations: scene.DefaultOptimizeIterations,
			ChurnEvery:         10,
			Heuristic:          bvh.HeuristicBranchAndBound.String(),
			Seed:               1,
		},
		HiZ: hizConfig{
			Width:  256,
			Height: 144,
		},
		Events: eventsConfig{
			FlushInterval: events.DefaultFlushInterval,
			BatchSize:     events.DefaultBatchSize,
			QueueSize:     events.DefaultQueueSize,
		},
	}
}

func main() {
	conf := defaultConfig()

	// set the information gauge to 1, useful for SUM query
	infoGauge.Set(1)

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Starts a dynamic BVH culling server running a simulated scene.").
		Options(&conf)
	cli.Load()

	if conf.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := validateConfig(conf); err != nil {
		logs.Fatal(err)
	}

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.Encoder = json.Marshal
	if conf.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}

	errors.Encoder = json.Marshal

	if conf.Events.Endpoint != "" {
		eventsPusher := events.Pusher{
			Endpoint:      conf.Events.Endpoint,
			FlushInterval: conf.Events.FlushInterval,
			BatchSize:     conf.Events.BatchSize,
			QueueSize:     conf.Events.QueueSize,
			Transport:     metrics.HTTPTransport(http.DefaultTransport),
		}
		go eventsPusher.Start()
		defer eventsPusher.Close()

		eventsLogger := events.Logger{
			Pusher:           &eventsPusher,
			SDKType:          "dynbvhd",
			SDKVersionFamily: version,
		}
		logs.SetLogger(eventsLogger.Log)
	}

	heuristic, _ := bvh.ParseHeuristic(conf.Scene.Heuristic)

	s := scene.New(scene.Config{
		Margin:             float32(conf.Scene.MarginCm) / 100,
		MaxVisible:         conf.Scene.MaxVisible,
		OptimizeEvery:      conf.Scene.OptimizeEvery,
		OptimizeIterations: conf.Scene.OptimizeIterations,
		Heuristic:          heuristic,
		FeatureFlags:       featureflag.New(conf.FeatureFlags),
	})

	var depth *hiz.Buffer
	if conf.HiZ.Width != 0 && conf.HiZ.Height != 0 {
		b, err := hiz.NewBuffer(conf.HiZ.Width, conf.HiZ.Height)
		if err != nil {
			logs.Fatal(errors.New("creating depth buffer failed").Wrap(err))
		}
		depth = b
	}

	sim := newSimulation(s, simulationConfig{
		Entities:      conf.Scene.Entities,
		Extent:        float32(conf.Scene.Extent),
		MaxSpeed:      float32(conf.Scene.MaxSpeed),
		MaxEntitySize: float32(conf.Scene.MaxEntitySize) / 100,
		ChurnEvery:    conf.Scene.ChurnEvery,
		FrameDuration: conf.FrameDuration,
		Seed:          int64(conf.Scene.Seed),
	}, depth)

	runner := scene.NewRunner(s, scene.RunnerConfig{
		FrameDuration:      conf.FrameDuration,
		LogSummaryInterval: conf.LogSummaryInterval,
		Frame:              sim.Frame,
	})
	go runner.Run(ctx)

	readinessCheck := func() error {
		select {
		case <-runner.Done():
			return errors.New("scene runner is stopped").
				WithType(scene.ErrTypeRunnerStopped)
		default:
		}

		if runner.LastFrame().Frame == 0 {
			return errors.New("no frame run yet")
		}
		return nil
	}

	var admin http.ServeMux
	admin.Handle("/metrics", promhttp.Handler())
	admin.HandleFunc("/health", dynbvhhttp.HandleHealthCheck)
	admin.HandleFunc("/ready", dynbvhhttp.HandleReadyCheck(readinessCheck))
	admin.Handle("/version", dynbvhhttp.HandleWithCORS(dynbvhhttp.HandleVersion(version)))
	admin.HandleFunc("/debug/pprof/", pprof.Index)
	admin.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	admin.HandleFunc("/debug/pprof/profile", pprof.Profile)
	admin.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	admin.HandleFunc("/debug/pprof/trace", pprof.Trace)
	admin.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	admin.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	admin.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))
	admin.Handle("/debug/pprof/block", pprof.Handler("block"))
	admin.Handle("/debug/bvh", dynbvhhttp.HandleWithCORS(dynbvhhttp.HandleDebugInfo(runner)))
	admin.Handle("/debug/bvh/tree", dynbvhhttp.HandleWithCORS(dynbvhhttp.HandleTreePrint(runner)))
	admin.Handle("/debug/bvh/heatmap", dynbvhhttp.HandleWithCORS(dynbvhhttp.HandleHeatmap(runner)))
	admin.Handle("/debug/bvh/stream", websocket.Server{
		Handler: dynbvhhttp.HandleFrameStream(ctx, runner),
	})

	logs.WithTag("version", version).
		WithTag("log_level", conf.LogLevel).
		WithTag("admin_addr", conf.AdminAddr).
		WithTag("feature_flags", conf.FeatureFlags).
		Info("starting dynbvhd")

	dynbvhhttp.ListenAndServe(ctx,
		&http.Server{Addr: conf.AdminAddr, Handler: metrics.HTTPHandler(&admin,
			dynbvhhttp.MetricsPathFormatter)},
	)

	<-runner.Done()
}

func validateConfig(conf config) error {
	if _, err := bvh.ParseHeuristic(conf.Scene.Heuristic); err != nil {
		return errors.New("invalid scene heuristic").Wrap(err)
	}

	if conf.FrameDuration <= 0 {
		return errors.New("frame duration must be positive").
			WithTag("frame_duration", conf.FrameDuration)
	}

	if conf.Scene.Entities < 0 {
		return errors.New("entity count can't be negative").
			WithTag("entities", conf.Scene.Entities)
	}

	if conf.Scene.Extent <= 0 {
		return errors.New("scene extent must be positive").
			WithTag("extent", conf.Scene.Extent)
	}

	if conf.Scene.MarginCm < 0 {
		return errors.New("scene margin can't be negative").
			WithTag("margin_cm", conf.Scene.MarginCm)
	}

	if conf.Scene.MaxVisible <= 0 {
		return errors.New("max visible entities must be positive").
			WithTag("max_visible", conf.Scene.MaxVisible)
	}

	if (conf.HiZ.Width == 0) != (conf.HiZ.Height == 0) {
		return errors.New("have to specify both depth buffer width and height, or none").
			WithTag("width", conf.HiZ.Width).
			WithTag("height", conf.HiZ.Height)
	}

	if conf.HiZ.Width < 0 || conf.HiZ.Height < 0 {
		return errors.New("depth buffer size can't be negative").
			WithTag("width", conf.HiZ.Width).
			WithTag("height", conf.HiZ.Height)
	}

	return nil
}
