package spatialmath

import (
	"fmt"

	"github.com/golang/geo/r3"
)

// box is a collision geometry that represents a 3D rectangular prism, it has a pose and half size that fully define it.
type box struct {
	pose     Pose
	halfSize [3]float64
	label    string
}

// NewBox instantiates a new box Geometry. dims are the full side lengths along the local x, y and z axes.
func NewBox(pose Pose, dims r3.Vector, label string) (Geometry, error) {
	if dims.X <= 0 || dims.Y <= 0 || dims.Z <= 0 || !checkFinite(dims.X, dims.Y, dims.Z) {
		return nil, newBadGeometryDimensionsError("box", "dimensions %v must be positive", dims)
	}
	return &box{pose: pose, halfSize: [3]float64{dims.X / 2, dims.Y / 2, dims.Z / 2}, label: label}, nil
}

// String returns a human readable string that represents the box.
func (b *box) String() string {
	return fmt.Sprintf("Type: Box, X: %.4g, Y: %.4g, Z: %.4g", 2*b.halfSize[0], 2*b.halfSize[1], 2*b.halfSize[2])
}

// SetLabel sets the label of this box.
func (b *box) SetLabel(label string) {
	b.label = label
}

// Label returns the label of this box.
func (b *box) Label() string {
	return b.label
}

// Pose returns the pose of the box.
func (b *box) Pose() Pose {
	return b.pose
}

// AlmostEqual compares the box with another geometry and checks if they are equivalent.
func (b *box) AlmostEqual(g Geometry) bool {
	other, ok := g.(*box)
	if !ok {
		return false
	}
	for i := range b.halfSize {
		if b.halfSize[i]-other.halfSize[i] > 1e-8 || other.halfSize[i]-b.halfSize[i] > 1e-8 {
			return false
		}
	}
	return PoseAlmostEqualEps(b.pose, other.pose, 1e-6)
}

// Transform premultiplies the box pose with a transform, allowing the box to be moved in space.
func (b *box) Transform(toPremultiply Pose) Geometry {
	return &box{pose: Compose(toPremultiply, b.pose), halfSize: b.halfSize, label: b.label}
}

func (b *box) ToConfig() *GeometryConfig {
	cfg := newGeometryConfigFromPose(BoxType, b.pose, b.label)
	cfg.X = 2 * b.halfSize[0]
	cfg.Y = 2 * b.halfSize[1]
	cfg.Z = 2 * b.halfSize[2]
	return cfg
}

func (b *box) core() *convexCore {
	rm := b.pose.Orientation().RotationMatrix()
	center := b.pose.Point()
	axes := [3]r3.Vector{rm.Col(0), rm.Col(1), rm.Col(2)}

	vertices := make([]r3.Vector, 0, 8)
	for _, sx := range []float64{-1, 1} {
		for _, sy := range []float64{-1, 1} {
			for _, sz := range []float64{-1, 1} {
				vertices = append(vertices, center.
					Add(axes[0].Mul(sx*b.halfSize[0])).
					Add(axes[1].Mul(sy*b.halfSize[1])).
					Add(axes[2].Mul(sz*b.halfSize[2])))
			}
		}
	}
	return &convexCore{
		kind:        polytopeCore,
		center:      center,
		vertices:    vertices,
		faceNormals: axes[:],
		edgeDirs:    axes[:],
	}
}
