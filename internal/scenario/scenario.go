// Package scenario parses scripted window sessions and replays them
// against a store with attached reconcilers.
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
	"pkt.systems/shellsync/schema"
)

// Op names a scenario step.
type Op string

const (
	OpCreateWindow Op = "create_window"
	OpCloseWindow  Op = "close_window"
	OpCreateTab    Op = "create_tab"
	OpRemoveTab    Op = "remove_tab"
	OpUpdateTab    Op = "update_tab"
	OpActivate     Op = "activate"
	OpChangeActive Op = "change_active"
	OpFullscreen   Op = "fullscreen"
	OpReopen       Op = "reopen"
	OpOpenFiles    Op = "open_files"
	OpResolved     Op = "resolved"
	OpUpdater      Op = "updater"
	OpAcknowledge  Op = "acknowledge"
)

var knownOps = map[Op]bool{
	OpCreateWindow: true, OpCloseWindow: true, OpCreateTab: true, OpRemoveTab: true,
	OpUpdateTab: true, OpActivate: true, OpChangeActive: true, OpFullscreen: true,
	OpReopen: true, OpOpenFiles: true, OpResolved: true, OpUpdater: true, OpAcknowledge: true,
}

// Scenario is a scripted session.
type Scenario struct {
	Name     string       `yaml:"name"`
	Platform string       `yaml:"platform,omitempty"`
	Windows  []WindowSpec `yaml:"windows"`
	Steps    []Step       `yaml:"steps"`
}

// WindowSpec declares a window that exists before the first step.
type WindowSpec struct {
	Name string   `yaml:"name"`
	URLs []string `yaml:"urls,omitempty"`
	// Consumers is the number of reconcilers attached; zero means one.
	Consumers int `yaml:"consumers,omitempty"`
}

// Step is one scripted action. Which fields apply depends on Op.
type Step struct {
	Op         Op              `yaml:"op"`
	Window     string          `yaml:"window"`
	URL        string          `yaml:"url,omitempty"`
	URLs       []string        `yaml:"urls,omitempty"`
	Index      int             `yaml:"index,omitempty"`
	By         int             `yaml:"by,omitempty"`
	Active     bool            `yaml:"active,omitempty"`
	Fullscreen bool            `yaml:"fullscreen,omitempty"`
	Patch      schema.TabPatch `yaml:"patch,omitempty"`
	Paths      []string        `yaml:"paths,omitempty"`
	Path       string          `yaml:"path,omitempty"`
	State      string          `yaml:"state,omitempty"`
	// Drain controls whether consumers catch up after the step. Defaults to true.
	Drain *bool `yaml:"drain,omitempty"`
}

func (s Step) drain() bool {
	return s.Drain == nil || *s.Drain
}

// ParseFile reads and validates a scenario file.
func ParseFile(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, err
	}
	sc, err := Parse(data)
	if err != nil {
		return Scenario{}, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

// Parse decodes a scenario. Unknown fields are rejected.
func Parse(data []byte) (Scenario, error) {
	var sc Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		if errors.Is(err, io.EOF) {
			return Scenario{}, errors.New("scenario is empty")
		}
		return Scenario{}, err
	}
	if err := sc.Validate(); err != nil {
		return Scenario{}, err
	}
	return sc, nil
}

// Validate checks ops and window references in script order.
func (sc Scenario) Validate() error {
	open := make(map[string]bool)
	for _, w := range sc.Windows {
		if w.Name == "" {
			return errors.New("window name is required")
		}
		if open[w.Name] {
			return fmt.Errorf("duplicate window %q", w.Name)
		}
		if w.Consumers < 0 {
			return fmt.Errorf("window %q: consumers must not be negative", w.Name)
		}
		open[w.Name] = true
	}
	for i, step := range sc.Steps {
		if !knownOps[step.Op] {
			return fmt.Errorf("step %d: unknown op %q", i+1, step.Op)
		}
		if step.Window == "" {
			return fmt.Errorf("step %d: window is required", i+1)
		}
		switch step.Op {
		case OpCreateWindow:
			if open[step.Window] {
				return fmt.Errorf("step %d: window %q already open", i+1, step.Window)
			}
			open[step.Window] = true
			continue
		case OpUpdater:
			if step.State == "" {
				return fmt.Errorf("step %d: updater state is required", i+1)
			}
		}
		if !open[step.Window] {
			return fmt.Errorf("step %d: window %q is not open", i+1, step.Window)
		}
		if step.Op == OpCloseWindow {
			delete(open, step.Window)
		}
	}
	return nil
}
