// Package collision holds per-link collision geometry, decides which link pairs are checked, and measures
// signed distances between robot links and external obstacles.
package collision

import (
	"go.viam.com/kinopt/kinematics"
	"go.viam.com/kinopt/referenceframe"
	spatial "go.viam.com/kinopt/spatialmath"
)

// GeometryStore holds the collision shapes of every link in link-local frames. It is read-only after
// construction and safe for concurrent use.
type GeometryStore struct {
	model  *referenceframe.Model
	shapes [][]spatial.Geometry
}

// NewGeometryStore collects the collision shapes of every link of the model.
func NewGeometryStore(m *referenceframe.Model) *GeometryStore {
	s := &GeometryStore{model: m, shapes: make([][]spatial.Geometry, m.NumLinks())}
	for i := range s.shapes {
		link, err := m.Link(i)
		if err != nil {
			continue
		}
		s.shapes[i] = link.Geometries
	}
	return s
}

// Model returns the model the store was built from.
func (s *GeometryStore) Model() *referenceframe.Model {
	return s.model
}

// WithoutLinks returns a copy of the store in which the named links carry no shapes, so no pair involving them
// is measured. The model and the receiver are unchanged.
func (s *GeometryStore) WithoutLinks(names ...string) (*GeometryStore, error) {
	shapes := append([][]spatial.Geometry(nil), s.shapes...)
	for _, name := range names {
		idx, err := s.model.LinkIndex(name)
		if err != nil {
			return nil, err
		}
		shapes[idx] = nil
	}
	return &GeometryStore{model: s.model, shapes: shapes}, nil
}

// ShapesFor returns the link's shapes in its local frame. The returned slice must not be modified.
func (s *GeometryStore) ShapesFor(link int) []spatial.Geometry {
	if link < 0 || link >= len(s.shapes) {
		return nil
	}
	return s.shapes[link]
}

// HasShapes reports whether the link carries any collision geometry.
func (s *GeometryStore) HasShapes(link int) bool {
	return len(s.ShapesFor(link)) > 0
}

// WorldShapes returns the link's shapes moved into the world frame by the given transforms.
func (s *GeometryStore) WorldShapes(lt *kinematics.LinkTransforms, link int) ([]spatial.Geometry, error) {
	pose, err := lt.Pose(link)
	if err != nil {
		return nil, err
	}
	local := s.ShapesFor(link)
	world := make([]spatial.Geometry, 0, len(local))
	for _, g := range local {
		world = append(world, g.Transform(pose))
	}
	return world, nil
}

// allWorldShapes transforms every link's shapes once so pair queries can share them.
func (s *GeometryStore) allWorldShapes(lt *kinematics.LinkTransforms) ([][]spatial.Geometry, error) {
	out := make([][]spatial.Geometry, len(s.shapes))
	for i := range s.shapes {
		if len(s.shapes[i]) == 0 {
			continue
		}
		world, err := s.WorldShapes(lt, i)
		if err != nil {
			return nil, err
		}
		out[i] = world
	}
	return out, nil
}
