package main

import (
	"path/filepath"

	"github.com/a8m/envsubst"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"go.viam.com/kinopt/motionplan"
	"go.viam.com/kinopt/referenceframe"
	spatial "go.viam.com/kinopt/spatialmath"
)

// problemConfig is the on-disk form of a problem. The model is either inline or a path relative to the
// problem file. ${VAR} references are expanded from the environment before parsing.
type problemConfig struct {
	ModelFile string                      `json:"model_file,omitempty" yaml:"model_file,omitempty"`
	Model     *referenceframe.ModelConfig `json:"model,omitempty" yaml:"model,omitempty"`
	Start     []float64                   `json:"start,omitempty" yaml:"start,omitempty"`
	Goals     []goalConfig                `json:"goals,omitempty" yaml:"goals,omitempty"`
	Obstacles []spatial.GeometryConfig    `json:"obstacles,omitempty" yaml:"obstacles,omitempty"`
	Options   map[string]interface{}      `json:"options,omitempty" yaml:"options,omitempty"`
}

type goalConfig struct {
	Link         string             `json:"link" yaml:"link"`
	Pose         spatial.PoseConfig `json:"pose" yaml:"pose"`
	PositionOnly bool               `json:"position_only,omitempty" yaml:"position_only,omitempty"`
}

// problem is a parsed problemConfig.
type problem struct {
	model     *referenceframe.Model
	start     []referenceframe.Input
	goals     []motionplan.Goal
	obstacles []spatial.Geometry
	options   *motionplan.Options
}

func loadProblem(path string) (*problem, error) {
	data, err := envsubst.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read problem file")
	}
	var cfg problemConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse problem file %q", path)
	}
	return cfg.parse(filepath.Dir(path))
}

func (cfg *problemConfig) parse(dir string) (*problem, error) {
	p := &problem{}
	var err error
	switch {
	case cfg.Model != nil && cfg.ModelFile != "":
		return nil, errors.New("problem must set only one of model and model_file")
	case cfg.Model != nil:
		p.model, err = cfg.Model.ParseConfig()
	case cfg.ModelFile != "":
		modelPath := cfg.ModelFile
		if !filepath.IsAbs(modelPath) {
			modelPath = filepath.Join(dir, modelPath)
		}
		p.model, err = referenceframe.ParseModelFile(modelPath, "")
	default:
		return nil, referenceframe.ErrNoModelInformation
	}
	if err != nil {
		return nil, err
	}

	if cfg.Start != nil {
		if err := p.model.ValidateInputs(cfg.Start); err != nil {
			return nil, errors.Wrap(err, "start")
		}
		p.start = referenceframe.CopyInputs(cfg.Start)
	}

	for i := range cfg.Goals {
		pose, err := cfg.Goals[i].Pose.ParseConfig()
		if err != nil {
			return nil, errors.Wrapf(err, "goal %d", i)
		}
		p.goals = append(p.goals, motionplan.Goal{
			Link:         cfg.Goals[i].Link,
			Pose:         pose,
			PositionOnly: cfg.Goals[i].PositionOnly,
		})
	}

	for i := range cfg.Obstacles {
		g, err := cfg.Obstacles[i].ParseConfig()
		if err != nil {
			return nil, errors.Wrapf(err, "obstacle %d", i)
		}
		p.obstacles = append(p.obstacles, g)
	}

	p.options = motionplan.NewDefaultOptions()
	if len(cfg.Options) > 0 {
		if p.options, err = motionplan.NewOptionsFromMap(cfg.Options); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// startState is the configured start, or all zeros.
func (p *problem) startState() []referenceframe.Input {
	if p.start == nil {
		return p.model.ZeroInputs()
	}
	return p.start
}
