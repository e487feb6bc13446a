// Package scene provides a node arena with weak parent links, name lookup,
// transform propagation, and a first-person camera. Scene code reaches the
// GPU only through the narrow GpuResourceProvider interface.
package scene

import (
	"github.com/cockroachdb/errors"
	"github.com/corydouthat/acid-vulkan/gpu"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/arsenal/vam"
	"github.com/vkngwrapper/core/v2/core1_0"
	vkngmath "github.com/vkngwrapper/math"
	"golang.org/x/exp/slog"
)

// GpuResourceProvider is the slice of the engine scene code is allowed to
// see: buffer allocation and synchronous uploads, nothing else.
type GpuResourceProvider interface {
	CreateBuffer(size int, usage core1_0.BufferUsageFlags, memoryUsage vam.MemoryUsage, flags vam.AllocationCreateFlags) (*gpu.Buffer, error)
	DestroyBuffer(buffer *gpu.Buffer)
	ImmediateSubmit(record func(cmd core1_0.CommandBuffer) error) error
}

// NodeID is a stable handle into the graph's node arena. IDs stay valid
// until the node is removed; slots are recycled afterwards.
type NodeID int32

// NoNode is the parent of root nodes and the ID returned on failed adds.
const NoNode NodeID = -1

type node struct {
	name   string
	parent NodeID
	local  vkngmath.Mat4x4[float32]
	world  vkngmath.Mat4x4[float32]
	mesh   *gpu.MeshBuffers
	alive  bool
}

// Graph is an arena of named, transformable nodes. Parent links are IDs
// rather than pointers: removing a parent orphans its children instead of
// leaving dangling references. Not safe for concurrent use.
type Graph struct {
	logger *slog.Logger
	nodes  []node
	free   []NodeID
	byName *swiss.Map[string, NodeID]
}

// NewGraph returns an empty graph.
func NewGraph(logger *slog.Logger) *Graph {
	return &Graph{
		logger: logger,
		byName: swiss.NewMap[string, NodeID](16),
	}
}

// Add creates a node under parent, or a root node when parent is NoNode.
// Names must be unique within the graph.
func (g *Graph) Add(name string, parent NodeID) (NodeID, error) {
	if parent != NoNode && !g.Valid(parent) {
		return NoNode, errors.Newf("node %q was added under invalid parent %d", name, parent)
	}
	if _, exists := g.byName.Get(name); exists {
		return NoNode, errors.Newf("a node named %q already exists", name)
	}

	var id NodeID
	if freeCount := len(g.free); freeCount > 0 {
		id = g.free[freeCount-1]
		g.free = g.free[:freeCount-1]
	} else {
		id = NodeID(len(g.nodes))
		g.nodes = append(g.nodes, node{})
	}

	n := &g.nodes[id]
	*n = node{
		name:   name,
		parent: parent,
		alive:  true,
	}
	n.local.SetIdentity()
	n.world.SetIdentity()

	g.byName.Put(name, id)
	return id, nil
}

// Remove deletes the node and orphans its children, which become roots and
// keep their subtrees. Any mesh attached to the node is not released; mesh
// lifetime belongs to whoever uploaded it.
func (g *Graph) Remove(id NodeID) {
	if !g.Valid(id) {
		return
	}

	for i := range g.nodes {
		if g.nodes[i].alive && g.nodes[i].parent == id {
			g.nodes[i].parent = NoNode
		}
	}

	g.byName.Delete(g.nodes[id].name)
	g.nodes[id] = node{parent: NoNode}
	g.free = append(g.free, id)
}

// Valid reports whether id names a live node.
func (g *Graph) Valid(id NodeID) bool {
	return id >= 0 && int(id) < len(g.nodes) && g.nodes[id].alive
}

// Lookup finds a node by name.
func (g *Graph) Lookup(name string) (NodeID, bool) {
	return g.byName.Get(name)
}

// Len counts live nodes.
func (g *Graph) Len() int {
	count := 0
	for i := range g.nodes {
		if g.nodes[i].alive {
			count++
		}
	}
	return count
}

// SetParent reparents a node. Reparenting under a descendant is rejected to
// keep the graph acyclic.
func (g *Graph) SetParent(id, parent NodeID) error {
	if !g.Valid(id) {
		return errors.Newf("attempted to reparent invalid node %d", id)
	}
	if parent != NoNode {
		if !g.Valid(parent) {
			return errors.Newf("attempted to reparent node %d under invalid parent %d", id, parent)
		}
		for ancestor := parent; ancestor != NoNode && g.Valid(ancestor); ancestor = g.nodes[ancestor].parent {
			if ancestor == id {
				return errors.Newf("reparenting node %d under %d would create a cycle", id, parent)
			}
		}
	}

	g.nodes[id].parent = parent
	return nil
}

// SetLocalTransform replaces the node's transform relative to its parent.
func (g *Graph) SetLocalTransform(id NodeID, local vkngmath.Mat4x4[float32]) bool {
	if !g.Valid(id) {
		return false
	}
	g.nodes[id].local = local
	return true
}

// SetMesh attaches renderable geometry to the node. A nil mesh detaches.
func (g *Graph) SetMesh(id NodeID, mesh *gpu.MeshBuffers) bool {
	if !g.Valid(id) {
		return false
	}
	g.nodes[id].mesh = mesh
	return true
}

// WorldTransform returns the node's world transform as of the last
// UpdateTransforms call.
func (g *Graph) WorldTransform(id NodeID) (vkngmath.Mat4x4[float32], bool) {
	if !g.Valid(id) {
		var identity vkngmath.Mat4x4[float32]
		identity.SetIdentity()
		return identity, false
	}
	return g.nodes[id].world, true
}

// UpdateTransforms recomputes every live node's world transform from its
// parent chain. Nodes whose parent has been removed act as roots.
func (g *Graph) UpdateTransforms() {
	for id := range g.nodes {
		if g.nodes[id].alive {
			g.nodes[id].world = g.resolveWorld(NodeID(id))
		}
	}
}

func (g *Graph) resolveWorld(id NodeID) vkngmath.Mat4x4[float32] {
	n := &g.nodes[id]
	if n.parent == NoNode || !g.Valid(n.parent) {
		return n.local
	}

	world := g.resolveWorld(n.parent)
	world.MultMat4x4(&n.local)
	return world
}

// Renderable pairs a mesh with the world transform to draw it at.
type Renderable struct {
	Mesh  *gpu.MeshBuffers
	World vkngmath.Mat4x4[float32]
}

// Renderables collects every live node carrying a mesh, with world
// transforms as of the last UpdateTransforms call.
func (g *Graph) Renderables() []Renderable {
	var out []Renderable
	for i := range g.nodes {
		if g.nodes[i].alive && g.nodes[i].mesh != nil {
			out = append(out, Renderable{
				Mesh:  g.nodes[i].mesh,
				World: g.nodes[i].world,
			})
		}
	}
	return out
}
