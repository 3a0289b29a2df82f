// Package schedule loads the facility schedule: an object keyed by facility
// name whose key order is the order facilities are tried in.
package schedule

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/example/recreserve/internal/domain/reservation"
)

type entry struct {
	Link           string `json:"link" yaml:"link"`
	ActivityButton string `json:"activity_button" yaml:"activity_button"`
	Slots          []struct {
		StartingTime string `json:"starting_time" yaml:"starting_time"`
	} `json:"slots" yaml:"slots"`
}

// Load reads a .json, .yaml or .yml schedule file.
func Load(path string) ([]reservation.Facility, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var facilities []reservation.Facility
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		facilities, err = ParseJSON(b)
	case ".yaml", ".yml":
		facilities, err = ParseYAML(b)
	default:
		return nil, fmt.Errorf("schedule %s: unsupported extension %q", path, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("schedule %s: %w", path, err)
	}
	return facilities, nil
}

// ParseJSON decodes the top-level object key by key so that order survives.
func ParseJSON(b []byte) ([]reservation.Facility, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("top level must be an object keyed by facility name")
	}
	var out []reservation.Facility
	seen := map[string]bool{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name := tok.(string)
		var e entry
		if err := dec.Decode(&e); err != nil {
			return nil, fmt.Errorf("facility %q: %w", name, err)
		}
		f, err := e.facility(name, seen)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("unexpected data after schedule object")
	}
	return out, nil
}

// ParseYAML decodes through yaml.Node to keep mapping order.
func ParseYAML(b []byte) ([]reservation.Facility, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, errors.New("top level must be a mapping keyed by facility name")
	}
	var out []reservation.Facility
	seen := map[string]bool{}
	for i := 0; i+1 < len(root.Content); i += 2 {
		name := root.Content[i].Value
		var e entry
		if err := root.Content[i+1].Decode(&e); err != nil {
			return nil, fmt.Errorf("facility %q: %w", name, err)
		}
		f, err := e.facility(name, seen)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func (e entry) facility(name string, seen map[string]bool) (reservation.Facility, error) {
	if seen[name] {
		return reservation.Facility{}, fmt.Errorf("facility %q listed twice", name)
	}
	seen[name] = true

	// Labels are matched against the page text verbatim; only the link is
	// normalized.
	f := reservation.Facility{
		Name:           name,
		Link:           strings.TrimSpace(e.Link),
		ActivityButton: e.ActivityButton,
	}
	var missing []string
	if f.Link == "" {
		missing = append(missing, "link")
	}
	if strings.TrimSpace(f.ActivityButton) == "" {
		missing = append(missing, "activity_button")
	}
	if len(missing) > 0 {
		return f, fmt.Errorf("facility %q: %s required", name, strings.Join(missing, " and "))
	}
	for i, s := range e.Slots {
		if strings.TrimSpace(s.StartingTime) == "" {
			return f, fmt.Errorf("facility %q: slot %d: starting_time required", name, i)
		}
		f.Slots = append(f.Slots, reservation.Slot{StartingTime: s.StartingTime})
	}
	return f, nil
}
