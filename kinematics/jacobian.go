package kinematics

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/kinopt/referenceframe"
	spatial "go.viam.com/kinopt/spatialmath"
)

// jacobianStep is the central difference step used for floating joint rotation columns.
const jacobianStep = 1e-6

// Jacobian returns the 6xDoF geometric Jacobian of the given link's origin at the joint state of lt. Rows 0-2
// are the world linear velocity and rows 3-5 the world angular velocity per unit change of each DOF. Columns
// of DOF that do not move the link are zero.
func Jacobian(lt *LinkTransforms, link int) (*mat.Dense, error) {
	m := lt.model
	if m.DoF() == 0 {
		return nil, errors.New("cannot compute the jacobian of a model with no degrees of freedom")
	}
	target, err := lt.Pose(link)
	if err != nil {
		return nil, err
	}
	p := target.Point()
	jac := mat.NewDense(6, m.DoF(), nil)

	for l := link; l != m.Root(); l = m.ParentLink(l) {
		linkInfo, err := m.Link(l)
		if err != nil {
			return nil, err
		}
		idx := linkInfo.ParentJoint
		joint, err := m.Joint(idx)
		if err != nil {
			return nil, err
		}
		if joint.DoF() == 0 {
			continue
		}
		start, _, err := m.DoFRange(idx)
		if err != nil {
			return nil, err
		}
		frame, err := lt.JointFrame(idx)
		if err != nil {
			return nil, err
		}
		o := frame.Point()
		q := frame.Orientation().Quaternion()
		toWorld := func(v r3.Vector) r3.Vector { return spatial.RotateVector(q, v) }

		switch joint.Kind {
		case referenceframe.RevoluteJoint, referenceframe.ContinuousJoint:
			a := toWorld(joint.Axis.Normalize())
			setColumn(jac, start, a.Cross(p.Sub(o)), a)
		case referenceframe.PrismaticJoint:
			setColumn(jac, start, toWorld(joint.Axis.Normalize()), r3.Vector{})
		case referenceframe.PlanarJoint:
			normal := joint.Axis.Normalize()
			u := normal.Ortho()
			v := normal.Cross(u)
			uw, vw, a := toWorld(u), toWorld(v), toWorld(normal)
			values := m.JointInputs(lt.inputs, idx)
			pivot := o.Add(uw.Mul(values[0])).Add(vw.Mul(values[1]))
			setColumn(jac, start, uw, r3.Vector{})
			setColumn(jac, start+1, vw, r3.Vector{})
			setColumn(jac, start+2, a.Cross(p.Sub(pivot)), a)
		case referenceframe.FloatingJoint:
			setColumn(jac, start, toWorld(r3.Vector{X: 1}), r3.Vector{})
			setColumn(jac, start+1, toWorld(r3.Vector{Y: 1}), r3.Vector{})
			setColumn(jac, start+2, toWorld(r3.Vector{Z: 1}), r3.Vector{})
			for k := 3; k < 6; k++ {
				lin, ang, err := numericColumn(lt, link, start+k)
				if err != nil {
					return nil, err
				}
				setColumn(jac, start+k, lin, ang)
			}
		}
	}
	return jac, nil
}

// numericColumn differentiates the link pose with respect to one DOF by central differences.
func numericColumn(lt *LinkTransforms, link, dof int) (r3.Vector, r3.Vector, error) {
	plus := lt.Inputs()
	minus := lt.Inputs()
	plus[dof] += jacobianStep
	minus[dof] -= jacobianStep
	ltPlus, err := ComputeLinkTransforms(lt.model, plus)
	if err != nil {
		return r3.Vector{}, r3.Vector{}, err
	}
	ltMinus, err := ComputeLinkTransforms(lt.model, minus)
	if err != nil {
		return r3.Vector{}, r3.Vector{}, err
	}
	pp, pm := ltPlus.poses[link], ltMinus.poses[link]
	lin := pp.Point().Sub(pm.Point()).Mul(1 / (2 * jacobianStep))
	delta := spatial.OrientationBetween(pm.Orientation(), pp.Orientation())
	ang := spatial.QuatToR3AA(delta.Quaternion()).Mul(1 / (2 * jacobianStep))
	return lin, ang, nil
}

func setColumn(jac *mat.Dense, col int, lin, ang r3.Vector) {
	jac.Set(0, col, lin.X)
	jac.Set(1, col, lin.Y)
	jac.Set(2, col, lin.Z)
	jac.Set(3, col, ang.X)
	jac.Set(4, col, ang.Y)
	jac.Set(5, col, ang.Z)
}
