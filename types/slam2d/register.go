package slam2d

import (
	"go.viam.com/posegraph/graph"
	"go.viam.com/posegraph/registry"
)

// Tags of the elements in this package.
const (
	TagVertexSE2      = "VERTEX_SE2"
	TagVertexPointXY  = "VERTEX_XY"
	TagEdgeSE2        = "EDGE_SE2"
	TagEdgeSE2Prior   = "EDGE_SE2_PRIOR"
	TagEdgeSE2PointXY = "EDGE_SE2_XY"
)

// Register adds every element of this package to r.
func Register(r *registry.Registry) error {
	if err := r.Register(TagVertexSE2, func() graph.Element { return NewVertexSE2() }); err != nil {
		return err
	}
	if err := r.Register(TagVertexPointXY, func() graph.Element { return NewVertexPointXY() }); err != nil {
		return err
	}
	if err := r.Register(TagEdgeSE2, func() graph.Element { return NewEdgeSE2() }); err != nil {
		return err
	}
	if err := r.Register(TagEdgeSE2Prior, func() graph.Element { return NewEdgeSE2Prior() }); err != nil {
		return err
	}
	return r.Register(TagEdgeSE2PointXY, func() graph.Element { return NewEdgeSE2PointXY() })
}
