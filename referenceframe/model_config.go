package referenceframe

import (
	"encoding/json"
	"os"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	spatial "go.viam.com/kinopt/spatialmath"
)

// ErrNoModelInformation is used when there is no model information.
var ErrNoModelInformation = errors.New("no model information")

// ModelConfig represents all supported fields of a serialized kinematic tree.
type ModelConfig struct {
	Name                string        `json:"name" yaml:"name"`
	Links               []LinkConfig  `json:"links" yaml:"links"`
	Joints              []JointConfig `json:"joints,omitempty" yaml:"joints,omitempty"`
	CollisionExclusions [][2]string   `json:"collision_exclusions,omitempty" yaml:"collision_exclusions,omitempty"`
}

// LinkConfig describes a link and its collision geometry in the link frame.
type LinkConfig struct {
	Name       string                   `json:"name" yaml:"name"`
	Geometries []spatial.GeometryConfig `json:"geometries,omitempty" yaml:"geometries,omitempty"`
	VisualMesh string                   `json:"visual_mesh,omitempty" yaml:"visual_mesh,omitempty"`
}

// JointConfig describes a joint between two named links.
type JointConfig struct {
	Name   string              `json:"name" yaml:"name"`
	Type   string              `json:"type" yaml:"type"`
	Parent string              `json:"parent" yaml:"parent"`
	Child  string              `json:"child" yaml:"child"`
	Axis   r3.Vector           `json:"axis,omitempty" yaml:"axis,omitempty"`
	Origin *spatial.PoseConfig `json:"origin,omitempty" yaml:"origin,omitempty"`
	Limits []Limit             `json:"limits,omitempty" yaml:"limits,omitempty"`
	// DoF optionally declares the expected DOF count, which must agree with Type.
	DoF *int `json:"dof,omitempty" yaml:"dof,omitempty"`
}

// ParseConfig converts the joint config into a Joint, resolving link names through linkIndex.
func (cfg *JointConfig) ParseConfig(linkIndex map[string]int) (Joint, error) {
	kind, err := ParseJointKind(cfg.Type)
	if err != nil {
		return Joint{}, NewMalformedModelError("joint %q: %v", cfg.Name, err)
	}
	if cfg.DoF != nil && *cfg.DoF != kind.DoF() {
		return Joint{}, NewMalformedModelError("joint %q declares %d dof but a %s joint has %d", cfg.Name, *cfg.DoF, kind, kind.DoF())
	}
	parent, ok := linkIndex[cfg.Parent]
	if !ok {
		return Joint{}, NewMalformedModelError("joint %q has unknown parent link %q", cfg.Name, cfg.Parent)
	}
	child, ok := linkIndex[cfg.Child]
	if !ok {
		return Joint{}, NewMalformedModelError("joint %q has unknown child link %q", cfg.Name, cfg.Child)
	}
	origin, err := cfg.Origin.ParseConfig()
	if err != nil {
		return Joint{}, errors.Wrapf(err, "joint %q origin", cfg.Name)
	}
	return Joint{
		Name:   cfg.Name,
		Kind:   kind,
		Axis:   cfg.Axis,
		Limits: cfg.Limits,
		Parent: parent,
		Child:  child,
		Origin: origin,
	}, nil
}

// ParseConfig converts the ModelConfig into a validated Model.
func (cfg *ModelConfig) ParseConfig() (*Model, error) {
	links := make([]Link, 0, len(cfg.Links))
	linkIndex := make(map[string]int, len(cfg.Links))
	for i, lc := range cfg.Links {
		geoms := make([]spatial.Geometry, 0, len(lc.Geometries))
		for k := range lc.Geometries {
			g, err := lc.Geometries[k].ParseConfig()
			if err != nil {
				return nil, errors.Wrapf(err, "link %q geometry %d", lc.Name, k)
			}
			if g.Label() == "" {
				g.SetLabel(lc.Name)
			}
			geoms = append(geoms, g)
		}
		if _, ok := linkIndex[lc.Name]; !ok {
			linkIndex[lc.Name] = i
		}
		links = append(links, Link{Name: lc.Name, Geometries: geoms, VisualMesh: lc.VisualMesh})
	}
	joints := make([]Joint, 0, len(cfg.Joints))
	for i := range cfg.Joints {
		j, err := cfg.Joints[i].ParseConfig(linkIndex)
		if err != nil {
			return nil, err
		}
		joints = append(joints, j)
	}
	return NewModel(cfg.Name, links, joints, cfg.CollisionExclusions...)
}

// UnmarshalModelConfig parses JSON or YAML model data. modelName overrides the name in the data when non-empty.
func UnmarshalModelConfig(data []byte, modelName string) (*Model, error) {
	if len(data) == 0 {
		return nil, ErrNoModelInformation
	}
	cfg := &ModelConfig{}
	// JSON is a subset of YAML, so one decoder covers both formats.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return nil, errors.Wrap(err, "failed to unmarshal model config")
		}
	}
	if modelName != "" {
		cfg.Name = modelName
	}
	return cfg.ParseConfig()
}

// ParseModelFile reads a JSON or YAML model file.
func ParseModelFile(filename, modelName string) (*Model, error) {
	//nolint:gosec
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read model file")
	}
	return UnmarshalModelConfig(data, modelName)
}
