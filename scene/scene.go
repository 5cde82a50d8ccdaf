package scene

import (
	"time"

	"github.com/aukilabs/dynbvh/bvh"
	"github.com/aukilabs/dynbvh/featureflag"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

const (
	ErrTypeEntityNotFound = "scene-entity-not-found"
)

const (
	DefaultMargin             = 0.5
	DefaultMaxVisible         = 4096
	DefaultOptimizeEvery      = 1024
	DefaultOptimizeIterations = 8
)

// Config configures a Scene. Zero values are replaced by defaults.
type Config struct {
	// The distance by which entity bounds are grown in the tree.
	Margin float32

	// The capacity of the visible entity buffer.
	MaxVisible int

	// The number of spawns, despawns and reinsertions between two tree
	// optimizations.
	OptimizeEvery int

	// The maximum number of sweeps of a tree optimization.
	OptimizeIterations int

	// The heuristic used to insert entities.
	Heuristic bvh.Heuristic

	FeatureFlags featureflag.FeatureFlag
}

// Camera is the point of view used to cull a scene.
type Camera struct {
	Projection mgl32.Mat4
	View       mgl32.Mat4
}

func (c Camera) ViewProj() mgl32.Mat4 {
	return c.Projection.Mul4(c.View)
}

// CullStats describes a culling of a scene.
type CullStats struct {
	Entities       int           `json:"entities"`
	FrustumVisible int           `json:"frustum_visible"`
	Visible        int           `json:"visible"`
	Occlusion      bool          `json:"occlusion"`
	Truncated      bool          `json:"truncated"`
	Duration       time.Duration `json:"duration"`
}

// Scene is a set of entities indexed by a bounding volume hierarchy and
// culled once per frame.
//
// A Scene is not safe for concurrent use. Share it through a Runner.
type Scene struct {
	UUID string

	conf      Config
	tree      *bvh.Tree
	entityIDs bvh.IDPool
	entities  map[uint32]*Entity

	marks   bvh.Marks
	nodes   []*bvh.Node
	visible []*Entity

	periodicOptimization bool
	occlusionCulling     bool
	mutations            int
	truncated            bool
	lastOptimization     bvh.OptimizeReport
}

// New returns an empty scene.
func New(conf Config) *Scene {
	if conf.Margin == 0 {
		conf.Margin = DefaultMargin
	}
	if conf.MaxVisible == 0 {
		conf.MaxVisible = DefaultMaxVisible
	}
	if conf.OptimizeEvery == 0 {
		conf.OptimizeEvery = DefaultOptimizeEvery
	}
	if conf.OptimizeIterations == 0 {
		conf.OptimizeIterations = DefaultOptimizeIterations
	}
	if conf.FeatureFlags == nil {
		conf.FeatureFlags = featureflag.New(nil)
	}

	s := &Scene{
		UUID: uuid.New().String(),
		conf: conf,
		tree: bvh.New(bvh.Options{
			Heuristic: conf.Heuristic,
		}),
		entities:             make(map[uint32]*Entity),
		nodes:                make([]*bvh.Node, conf.MaxVisible),
		visible:              make([]*Entity, 0, conf.MaxVisible),
		periodicOptimization: true,
		occlusionCulling:     true,
	}

	conf.FeatureFlags.IfSet(featureflag.FlagRotateOnInsert, func() {
		s.tree.SetRotateOnInsert(true)
	})
	conf.FeatureFlags.IfSet(featureflag.FlagDisablePeriodicOptimization, func() {
		s.periodicOptimization = false
	})
	conf.FeatureFlags.IfSet(featureflag.FlagDisableOcclusionCulling, func() {
		s.occlusionCulling = false
	})

	logs.WithTag("scene_uuid", s.UUID).
		WithTag("margin", conf.Margin).
		WithTag("max_visible", conf.MaxVisible).
		WithTag("heuristic", conf.Heuristic.String()).
		WithTag("feature_flags", conf.FeatureFlags.List()).
		Debug("scene created")
	return s
}

func (s *Scene) Tree() *bvh.Tree {
	return s.tree
}

func (s *Scene) EntityCount() int {
	return len(s.entities)
}

func (s *Scene) Entity(id uint32) (*Entity, bool) {
	e, ok := s.entities[id]
	return e, ok
}

// LastOptimization returns the report of the last periodic optimization.
func (s *Scene) LastOptimization() bvh.OptimizeReport {
	return s.lastOptimization
}

// Spawn adds an entity with the given bounds.
func (s *Scene) Spawn(bounds bvh.Box, data any) *Entity {
	e := &Entity{
		ID:     s.entityIDs.Allocate(),
		Data:   data,
		bounds: bvh.NewBox(bounds.Lower, bounds.Upper),
	}
	e.proxy = s.tree.Insert(e.bounds.Expand(s.conf.Margin), e)
	s.entities[e.ID] = e

	instrumentEntityCount(len(s.entities))
	s.mutated()
	return e
}

// Despawn removes the entity with the given id.
func (s *Scene) Despawn(id uint32) error {
	e, ok := s.entities[id]
	if !ok {
		return errors.New("entity not found").
			WithType(ErrTypeEntityNotFound).
			WithTag("entity_id", id)
	}

	if err := s.tree.RemoveLeaf(e.proxy); err != nil {
		return errors.New("despawning entity failed").
			WithType(errors.Type(err)).
			WithTag("entity_id", id).
			Wrap(err)
	}

	delete(s.entities, id)
	s.entityIDs.Release(id)
	e.proxy = nil

	instrumentEntityCount(len(s.entities))
	s.mutated()
	return nil
}

// Move sets the bounds of an entity. The tree is only updated when the new
// bounds leave the entity proxy box. It reports whether the entity was
// reinserted.
func (s *Scene) Move(id uint32, bounds bvh.Box) (bool, error) {
	e, ok := s.entities[id]
	if !ok {
		return false, errors.New("entity not found").
			WithType(ErrTypeEntityNotFound).
			WithTag("entity_id", id)
	}

	e.bounds = bvh.NewBox(bounds.Lower, bounds.Upper)
	if e.proxy.Box().Contains(e.bounds) {
		instrumentMove(false)
		return false, nil
	}

	if _, err := s.tree.ReInsert(e.proxy, e.bounds.Expand(s.conf.Margin)); err != nil {
		return false, errors.New("moving entity failed").
			WithType(errors.Type(err)).
			WithTag("entity_id", id).
			Wrap(err)
	}

	instrumentMove(true)
	s.mutated()
	return true, nil
}

// Cull returns the entities visible from the camera. The frustum pass runs
// first, then, when occluder is not nil, the occlusion pass over what the
// frustum pass kept. The returned slice is reused by the next call.
func (s *Scene) Cull(cam Camera, occluder bvh.OcclusionTester) ([]*Entity, CullStats) {
	start := time.Now()
	viewProj := cam.ViewProj()

	s.tree.ClearVisibility(&s.marks, true)

	n, truncated := s.tree.CullByFrustum(bvh.ExtractFrustum(viewProj), &s.marks, s.nodes)
	stats := CullStats{
		Entities:       len(s.entities),
		FrustumVisible: n,
	}

	if occluder != nil && s.occlusionCulling {
		stats.Occlusion = true
		n, truncated = s.tree.CullByHiZ(viewProj, cam.View, occluder, &s.marks, s.nodes)
	}

	s.visible = s.visible[:0]
	for _, node := range s.nodes[:n] {
		s.visible = append(s.visible, node.Data.(*Entity))
	}
	clear(s.nodes[:n])

	stats.Visible = n
	stats.Truncated = truncated
	stats.Duration = time.Since(start)

	if truncated && !s.truncated {
		logs.Warn(errors.New("visible entities truncated").
			WithTag("scene_uuid", s.UUID).
			WithTag("max_visible", s.conf.MaxVisible).
			WithTag("entities", len(s.entities)))
	}
	s.truncated = truncated

	instrumentCull(stats)
	return s.visible, stats
}

// Optimize runs a tree optimization.
func (s *Scene) Optimize() bvh.OptimizeReport {
	s.mutations = 0
	s.lastOptimization = s.tree.OptimizeTreeIterative(s.conf.OptimizeIterations)
	instrumentOptimization()
	return s.lastOptimization
}

func (s *Scene) mutated() {
	s.mutations++
	if s.periodicOptimization && s.mutations >= s.conf.OptimizeEvery {
		s.Optimize()
	}
}

// Clear removes every entity.
func (s *Scene) Clear() {
	for _, e := range s.entities {
		e.proxy = nil
	}
	clear(s.entities)
	s.tree.Clear()
	s.entityIDs.Reset()
	s.mutations = 0

	instrumentEntityCount(0)
	logs.WithTag("scene_uuid", s.UUID).Info("scene cleared")
}
