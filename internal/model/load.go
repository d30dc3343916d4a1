package model

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadRoutes reads a route table exported by the host platform as a JSON array
// of Route descriptors.
func LoadRoutes(path string) ([]Route, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read route table: %w", err)
	}
	var routes []Route
	if err := json.Unmarshal(data, &routes); err != nil {
		return nil, fmt.Errorf("parse route table %s: %w", path, err)
	}
	for i, r := range routes {
		if r.Method == "" || r.Path == "" {
			return nil, fmt.Errorf("route table %s: entry %d missing method or path", path, i)
		}
	}
	return routes, nil
}

// LoadModels reads response model descriptors from a JSON array of Model.
func LoadModels(path string) ([]Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read models: %w", err)
	}
	var models []Model
	if err := json.Unmarshal(data, &models); err != nil {
		return nil, fmt.Errorf("parse models %s: %w", path, err)
	}
	seen := make(map[string]struct{}, len(models))
	for _, m := range models {
		if m.Name == "" {
			return nil, fmt.Errorf("models %s: unnamed model", path)
		}
		if _, dup := seen[m.Name]; dup {
			return nil, fmt.Errorf("models %s: duplicate model %q", path, m.Name)
		}
		seen[m.Name] = struct{}{}
	}
	return models, nil
}
