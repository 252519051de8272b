package referenceframe

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"

	spatial "go.viam.com/kinopt/spatialmath"
)

// SerialSegment describes one joint plus the link it drives in a serial chain. The link extends Length
// along its local x axis.
type SerialSegment struct {
	Name   string
	Kind   JointKind
	Axis   r3.Vector
	Limit  *Limit
	Length float64
	// Radius of the capsule enclosing the link. Zero gives no collision geometry.
	Radius float64
}

// NewSerialChain builds a single-branch model: a "base" root link followed by one link per segment and a
// geometry-free "tip" link rigidly attached at the end of the last segment.
func NewSerialChain(name string, segments ...SerialSegment) (*Model, error) {
	links := []Link{{Name: "base"}}
	joints := make([]Joint, 0, len(segments)+1)
	prevLength := 0.0
	for i, seg := range segments {
		linkName := seg.Name
		if linkName == "" {
			linkName = fmt.Sprintf("link%d", i+1)
		}
		link := Link{Name: linkName}
		if seg.Radius > 0 {
			// capsules lie on local z; rotate onto x and center on the segment
			offset := spatial.NewPose(
				r3.Vector{X: seg.Length / 2},
				&spatial.R4AA{Theta: math.Pi / 2, RY: 1},
			)
			capsule, err := spatial.NewCapsule(offset, seg.Radius, math.Max(seg.Length, 2*seg.Radius), linkName)
			if err != nil {
				return nil, err
			}
			link.Geometries = []spatial.Geometry{capsule}
		}
		links = append(links, link)

		joint := Joint{
			Name:   "joint_" + linkName,
			Kind:   seg.Kind,
			Axis:   seg.Axis,
			Parent: i,
			Child:  i + 1,
			Origin: spatial.NewPoseFromPoint(r3.Vector{X: prevLength}),
		}
		if seg.Limit != nil {
			joint.Limits = []Limit{*seg.Limit}
		}
		joints = append(joints, joint)
		prevLength = seg.Length
	}
	links = append(links, Link{Name: "tip"})
	joints = append(joints, Joint{
		Name:   "joint_tip",
		Kind:   FixedJoint,
		Parent: len(links) - 2,
		Child:  len(links) - 1,
		Origin: spatial.NewPoseFromPoint(r3.Vector{X: prevLength}),
	})
	return NewModel(name, links, joints)
}
