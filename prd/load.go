// Package prd loads and validates PRD files (JSON or YAML) into
// core.PRD instances the orchestrator consumes. Loading generalizes
// core.Config's LoadFromEnv-then-Validate layering to file input instead of
// environment variables.
package prd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/itsneelabh/taskctl/core"
	"gopkg.in/yaml.v3"
)

// Load reads a PRD from path, deciding JSON vs YAML from the file
// extension (.yaml/.yml vs anything else defaults to JSON), then validates
// it before returning.
func Load(path string) (*core.PRD, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.NewFrameworkError("prd.Load", "prd", fmt.Errorf("read %s: %w", path, err))
	}

	prd, err := Decode(data, filepath.Ext(path))
	if err != nil {
		return nil, core.NewFrameworkError("prd.Load", "prd", err)
	}

	if err := Validate(prd); err != nil {
		return nil, core.NewFrameworkError("prd.Load", "prd", err)
	}

	return prd, nil
}

// Decode unmarshals raw PRD bytes. ext selects the format (".yaml"/".yml"
// for YAML, anything else for JSON); callers loading from non-file sources
// (e.g. an embedded config) can pass an empty ext to default to JSON.
func Decode(data []byte, ext string) (*core.PRD, error) {
	var out core.PRD
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	}
	return &out, nil
}
