// Package graph defines the optimizable graph: vertices holding manifold estimates, edges holding
// measurements that constrain one or more vertices, and the Graph container that owns both.
//
// Concrete element families embed BaseVertex and BaseEdge and implement the remaining methods of
// Vertex and Edge. Optional behavior is discovered through capability interfaces:
//
//	AnalyticJacobian  - closed-form Jacobians; NumericJacobian is used otherwise
//	InitialEstimator  - seeds a vertex from already initialized neighbors
//	CacheCreator      - attaches derived-quantity caches to incident vertices
//
// A Graph is not safe for concurrent mutation. Callers that share a graph between goroutines
// must hold their own lock for the lifetime of each optimization.
package graph
