package main

import (
	"math/rand"
	"time"

	"github.com/aukilabs/dynbvh/bvh"
	"github.com/aukilabs/dynbvh/hiz"
	"github.com/aukilabs/dynbvh/scene"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

type simulationConfig struct {
	Entities      int
	Extent        float32
	MaxSpeed      float32
	MaxEntitySize float32
	ChurnEvery    int
	FrameDuration time.Duration
	Seed          int64
}

type simulatedEntity struct {
	id       uint32
	position mgl32.Vec3
	velocity mgl32.Vec3
	halfSize mgl32.Vec3
}

func (e simulatedEntity) bounds() bvh.Box {
	return bvh.BoxFromCenter(e.position, e.halfSize)
}

// simulation moves random entities inside a cube while a camera orbits around
// it. A wall standing in the middle of the cube is used as occluder.
type simulation struct {
	conf     simulationConfig
	rand     *rand.Rand
	entities []simulatedEntity
	depth    *hiz.Buffer
	wall     bvh.Box
}

func newSimulation(s *scene.Scene, conf simulationConfig, depth *hiz.Buffer) *simulation {
	sim := &simulation{
		conf:  conf,
		rand:  rand.New(rand.NewSource(conf.Seed)),
		depth: depth,
		wall: bvh.NewBox(
			mgl32.Vec3{-conf.Extent / 2, -conf.Extent, -0.5},
			mgl32.Vec3{conf.Extent / 2, conf.Extent, 0.5},
		),
	}

	for i := 0; i < conf.Entities; i++ {
		sim.entities = append(sim.entities, sim.spawn(s))
	}

	logs.WithTag("scene_uuid", s.UUID).
		WithTag("entities", conf.Entities).
		WithTag("extent", conf.Extent).
		Info("simulation started")
	return sim
}

// Frame is a scene.FrameFunc.
func (sim *simulation) Frame(s *scene.Scene, frame uint64) (scene.Camera, bvh.OcclusionTester) {
	dt := float32(sim.conf.FrameDuration.Seconds())

	if sim.conf.ChurnEvery > 0 && frame%uint64(sim.conf.ChurnEvery) == 0 && len(sim.entities) != 0 {
		i := sim.rand.Intn(len(sim.entities))
		if err := s.Despawn(sim.entities[i].id); err != nil {
			logs.Warn(errors.New("despawning simulated entity failed").Wrap(err))
		}
		sim.entities[i] = sim.spawn(s)
	}

	for i := range sim.entities {
		e := &sim.entities[i]
		e.position = e.position.Add(e.velocity.Mul(dt))

		for axis := 0; axis < 3; axis++ {
			if math32.Abs(e.position[axis]) > sim.conf.Extent {
				e.position[axis] = math32.Copysign(sim.conf.Extent, e.position[axis])
				e.velocity[axis] = -e.velocity[axis]
			}
		}

		if _, err := s.Move(e.id, e.bounds()); err != nil {
			logs.Warn(errors.New("moving simulated entity failed").
				WithTag("entity_id", e.id).
				Wrap(err))
		}
	}

	cam := sim.camera(frame)
	if sim.depth == nil {
		return cam, nil
	}

	sim.depth.Clear()
	sim.depth.DrawOccluder(cam.ViewProj(), sim.wall)
	sim.depth.Build()
	return cam, sim.depth
}

func (sim *simulation) camera(frame uint64) scene.Camera {
	aspect := float32(1)
	if sim.depth != nil {
		aspect = float32(sim.depth.Width()) / float32(sim.depth.Height())
	}

	angle := float32(frame) * float32(sim.conf.FrameDuration.Seconds()) * 0.2
	distance := sim.conf.Extent * 2
	eye := mgl32.Vec3{
		distance * math32.Cos(angle),
		sim.conf.Extent / 2,
		distance * math32.Sin(angle),
	}

	return scene.Camera{
		Projection: mgl32.Perspective(mgl32.DegToRad(60), aspect, 0.1, distance*2),
		View:       mgl32.LookAtV(eye, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0}),
	}
}

func (sim *simulation) spawn(s *scene.Scene) simulatedEntity {
	e := simulatedEntity{
		position: sim.randomVec3(sim.conf.Extent),
		velocity: sim.randomVec3(sim.conf.MaxSpeed),
	}

	size := (0.1 + 0.9*sim.rand.Float32()) * sim.conf.MaxEntitySize / 2
	e.halfSize = mgl32.Vec3{size, size, size}
	e.id = s.Spawn(e.bounds(), nil).ID
	return e
}

func (sim *simulation) randomVec3(extent float32) mgl32.Vec3 {
	return mgl32.Vec3{
		(sim.rand.Float32()*2 - 1) * extent,
		(sim.rand.Float32()*2 - 1) * extent,
		(sim.rand.Float32()*2 - 1) * extent,
	}
}
