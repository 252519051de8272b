package referenceframe

import (
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	spatial "go.viam.com/kinopt/spatialmath"
)

func TestUnmarshalJSONModel(t *testing.T) {
	data := []byte(`{
		"name": "json_arm",
		"links": [{"name": "base"}, {"name": "upper", "geometries": [{"r": 0.1, "l": 1}]}],
		"joints": [{"name": "shoulder", "type": "revolute", "parent": "base", "child": "upper",
			"axis": {"x": 0, "y": 0, "z": 1}, "limits": [{"min": -1, "max": 1}]}]
	}`)
	m, err := UnmarshalModelConfig(data, "")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m.Name(), test.ShouldEqual, "json_arm")
	test.That(t, m.DoF(), test.ShouldEqual, 1)
	link, err := m.Link(1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, link.Geometries[0].ToConfig().Type, test.ShouldEqual, spatial.CapsuleType)

	_, err = UnmarshalModelConfig(nil, "")
	test.That(t, err, test.ShouldEqual, ErrNoModelInformation)
}

func TestModelConfigErrors(t *testing.T) {
	two := 2
	for _, tc := range []struct {
		name string
		cfg  ModelConfig
		msg  string
	}{
		{
			name: "declared dof disagrees",
			cfg: ModelConfig{
				Links:  []LinkConfig{{Name: "a"}, {Name: "b"}},
				Joints: []JointConfig{{Name: "j", Type: "revolute", Parent: "a", Child: "b", Axis: r3.Vector{X: 1}, DoF: &two}},
			},
			msg: "declares 2 dof",
		},
		{
			name: "unknown type",
			cfg: ModelConfig{
				Links:  []LinkConfig{{Name: "a"}, {Name: "b"}},
				Joints: []JointConfig{{Name: "j", Type: "helical", Parent: "a", Child: "b"}},
			},
			msg: "unsupported joint type",
		},
		{
			name: "unknown parent",
			cfg: ModelConfig{
				Links:  []LinkConfig{{Name: "a"}, {Name: "b"}},
				Joints: []JointConfig{{Name: "j", Type: "fixed", Parent: "zz", Child: "b"}},
			},
			msg: "unknown parent",
		},
		{
			name: "two roots",
			cfg: ModelConfig{
				Links: []LinkConfig{{Name: "a"}, {Name: "b"}},
			},
			msg: "disconnected",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.cfg.ParseConfig()
			test.That(t, errors.Is(err, ErrMalformedModel), test.ShouldBeTrue)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.msg)
		})
	}
}
