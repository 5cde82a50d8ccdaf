package scene

import (
	"github.com/aukilabs/dynbvh/bvh"
)

// Entity is an object of a scene. The tree holds a proxy of the entity: its
// bounds grown by the scene margin, so that small moves do not touch the tree.
type Entity struct {
	ID   uint32
	Data any

	bounds bvh.Box
	proxy  *bvh.Node
}

// Bounds returns the exact bounds of the entity.
func (e *Entity) Bounds() bvh.Box {
	return e.bounds
}

// ProxyBox returns the box stored in the tree for the entity. It reports false
// once the entity was despawned or the scene cleared.
func (e *Entity) ProxyBox() (bvh.Box, bool) {
	if e.proxy == nil {
		return bvh.Box{}, false
	}
	return e.proxy.Box(), true
}

func (e *Entity) Proxy() *bvh.Node {
	return e.proxy
}
