package slam3d

import (
	"go.viam.com/posegraph/graph"
	"go.viam.com/posegraph/registry"
)

// Tags of the elements in this package.
const (
	TagVertexSE3       = "VERTEX_SE3:QUAT"
	TagVertexPointXYZ  = "VERTEX_TRACKXYZ"
	TagEdgeSE3         = "EDGE_SE3:QUAT"
	TagEdgeSE3Prior    = "EDGE_SE3_PRIOR"
	TagEdgeSE3PointXYZ = "EDGE_SE3_TRACKXYZ"
)

// Register adds every element of this package to r.
func Register(r *registry.Registry) error {
	for _, reg := range []struct {
		tag     string
		factory registry.Factory
	}{
		{TagVertexSE3, func() graph.Element { return NewVertexSE3() }},
		{TagVertexPointXYZ, func() graph.Element { return NewVertexPointXYZ() }},
		{TagEdgeSE3, func() graph.Element { return NewEdgeSE3() }},
		{TagEdgeSE3Prior, func() graph.Element { return NewEdgeSE3Prior() }},
		{TagEdgeSE3PointXYZ, func() graph.Element { return NewEdgeSE3PointXYZ() }},
	} {
		if err := r.Register(reg.tag, reg.factory); err != nil {
			return err
		}
	}
	return nil
}
