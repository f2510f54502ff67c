// Package spatialmath defines the rigid-body groups used as vertex estimates and edge
// measurements: SE3 poses stored as a translation plus a unit quaternion, and planar SE2 poses.
package spatialmath
