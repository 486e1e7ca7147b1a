package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// plan is the YAML combine plan. Sources are listed in concatenation
// order; the engine never reorders them.
type plan struct {
	Sources    []string `yaml:"sources"`
	ConcatDims []string `yaml:"concat_dims"`
	Identical  []string `yaml:"identical"`
	Workers    int      `yaml:"workers"`
	Cache      string   `yaml:"cache"`
	Suffix     string   `yaml:"suffix"`
	Output     string   `yaml:"output"`
}

func loadPlan(path string) (*plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("plan %s: %w", path, err)
	}
	if len(p.Sources) == 0 {
		return nil, fmt.Errorf("plan %s: no sources listed", path)
	}
	return &p, nil
}
