package spatialmath

import (
	"fmt"

	"github.com/golang/geo/r3"
)

// maxHullVertices bounds the brute force face search done when a hull is built.
const maxHullVertices = 64

// convexHull is the convex hull of a point set expressed in the frame given by its pose.
type convexHull struct {
	pose  Pose
	label string

	// local frame
	vertices    []r3.Vector
	faceNormals []r3.Vector
	edgeDirs    []r3.Vector
}

// NewConvexHull builds a geometry from the convex hull of the given local-frame points. Interior points
// are allowed. The points must span at least a plane.
func NewConvexHull(pose Pose, points []r3.Vector, label string) (Geometry, error) {
	if len(points) < 3 {
		return nil, newBadGeometryDimensionsError("convex hull", "need at least 3 points, got %d", len(points))
	}
	if len(points) > maxHullVertices {
		return nil, newBadGeometryDimensionsError("convex hull", "at most %d points are supported, got %d", maxHullVertices, len(points))
	}
	for _, p := range points {
		if !checkFinite(p.X, p.Y, p.Z) {
			return nil, newBadGeometryDimensionsError("convex hull", "point %v is not finite", p)
		}
	}
	normals, edges := hullFeatures(points)
	if len(normals) == 0 {
		return nil, newBadGeometryDimensionsError("convex hull", "points are collinear")
	}
	pts := make([]r3.Vector, len(points))
	copy(pts, points)
	return &convexHull{pose: pose, label: label, vertices: pts, faceNormals: normals, edgeDirs: edges}, nil
}

// hullFeatures finds the supporting planes through every vertex triple and the boundary edges of
// each such face. Directions are deduplicated up to sign for edges and exactly for normals.
func hullFeatures(pts []r3.Vector) (normals, edges []r3.Vector) {
	scale := 0.
	for _, p := range pts {
		if n := p.Norm(); n > scale {
			scale = n
		}
	}
	eps := 1e-9 * (1 + scale)

	addUnique := func(set []r3.Vector, v r3.Vector, signed bool) []r3.Vector {
		for _, s := range set {
			d := s.Dot(v)
			if d > 1-1e-9 || (!signed && d < -1+1e-9) {
				return set
			}
		}
		return append(set, v)
	}

	for i := 0; i < len(pts); i++ {
		for j := i + 1; j < len(pts); j++ {
			for k := j + 1; k < len(pts); k++ {
				n := pts[j].Sub(pts[i]).Cross(pts[k].Sub(pts[i]))
				if n.Norm() < eps {
					continue
				}
				n = n.Normalize()
				above, below := false, false
				var onPlane []int
				for m, p := range pts {
					d := p.Sub(pts[i]).Dot(n)
					switch {
					case d > eps:
						above = true
					case d < -eps:
						below = true
					default:
						onPlane = append(onPlane, m)
					}
				}
				if above && below {
					continue
				}
				if !above {
					normals = addUnique(normals, n, true)
				}
				if !below {
					normals = addUnique(normals, n.Mul(-1), true)
				}
				for _, e := range faceEdges(pts, onPlane, n, eps) {
					edges = addUnique(edges, e, false)
				}
			}
		}
	}
	return normals, edges
}

// faceEdges returns the directions of the boundary edges of the planar point set idx with normal n.
func faceEdges(pts []r3.Vector, idx []int, n r3.Vector, eps float64) []r3.Vector {
	var dirs []r3.Vector
	for a := 0; a < len(idx); a++ {
		for b := a + 1; b < len(idx); b++ {
			p, q := pts[idx[a]], pts[idx[b]]
			dir := q.Sub(p)
			if dir.Norm() < eps {
				continue
			}
			pos, neg := false, false
			for _, c := range idx {
				side := dir.Cross(pts[c].Sub(p)).Dot(n)
				if side > eps {
					pos = true
				} else if side < -eps {
					neg = true
				}
			}
			if !(pos && neg) {
				dirs = append(dirs, dir.Normalize())
			}
		}
	}
	return dirs
}

// String returns a human readable string that represents the hull.
func (h *convexHull) String() string {
	return fmt.Sprintf("Type: ConvexHull, Vertices: %d, Faces: %d", len(h.vertices), len(h.faceNormals))
}

// Label returns the label of this hull.
func (h *convexHull) Label() string {
	return h.label
}

// SetLabel sets the label of this hull.
func (h *convexHull) SetLabel(label string) {
	h.label = label
}

// Pose returns the pose of the hull.
func (h *convexHull) Pose() Pose {
	return h.pose
}

// AlmostEqual compares the hull with another geometry and checks if they are equivalent.
func (h *convexHull) AlmostEqual(g Geometry) bool {
	other, ok := g.(*convexHull)
	if !ok || len(other.vertices) != len(h.vertices) {
		return false
	}
	for i := range h.vertices {
		if !R3VectorAlmostEqual(h.vertices[i], other.vertices[i], 1e-8) {
			return false
		}
	}
	return PoseAlmostEqualEps(h.pose, other.pose, 1e-6)
}

// Transform premultiplies the hull pose with a transform, allowing the hull to be moved in space.
func (h *convexHull) Transform(toPremultiply Pose) Geometry {
	return &convexHull{
		pose:        Compose(toPremultiply, h.pose),
		label:       h.label,
		vertices:    h.vertices,
		faceNormals: h.faceNormals,
		edgeDirs:    h.edgeDirs,
	}
}

func (h *convexHull) ToConfig() *GeometryConfig {
	cfg := newGeometryConfigFromPose(ConvexHullType, h.pose, h.label)
	cfg.Vertices = append([]r3.Vector{}, h.vertices...)
	return cfg
}

func (h *convexHull) core() *convexCore {
	q := h.pose.Orientation().Quaternion()
	c := &convexCore{
		kind:        polytopeCore,
		vertices:    make([]r3.Vector, len(h.vertices)),
		faceNormals: make([]r3.Vector, len(h.faceNormals)),
		edgeDirs:    make([]r3.Vector, len(h.edgeDirs)),
	}
	for i, v := range h.vertices {
		c.vertices[i] = TransformPoint(h.pose, v)
		c.center = c.center.Add(c.vertices[i])
	}
	c.center = c.center.Mul(1 / float64(len(c.vertices)))
	for i, n := range h.faceNormals {
		c.faceNormals[i] = RotateVector(q, n)
	}
	for i, e := range h.edgeDirs {
		c.edgeDirs[i] = RotateVector(q, e)
	}
	return c
}
