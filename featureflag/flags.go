package featureflag

type Flag string

const (
	// Rotates the ancestors of every inserted leaf.
	FlagRotateOnInsert Flag = "ROTATE_ON_INSERT"

	// Stops the scenes from optimizing their tree after a number of
	// mutations.
	FlagDisablePeriodicOptimization Flag = "DISABLE_PERIODIC_OPTIMIZATION"

	// Skips the hierarchical-Z pass of the frame culling.
	FlagDisableOcclusionCulling Flag = "DISABLE_OCCLUSION_CULLING"
)
