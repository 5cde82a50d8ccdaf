package bvh

const (
	ErrTypeNotLeaf            = "bvh-not-leaf"
	ErrTypeForeignNode        = "bvh-foreign-node"
	ErrTypeInvalidTree        = "bvh-invalid-tree"
	ErrTypeInvalidHeatmapSize = "bvh-invalid-heatmap-size"
	ErrTypeUnknownHeuristic   = "bvh-unknown-heuristic"
)
