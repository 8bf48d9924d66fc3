// internal/plan/plan.go
package plan

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

// Action names one kind of plan step.
type Action string

const (
	ActionInput        Action = "input"
	ActionSelect       Action = "select"
	ActionSelectRandom Action = "select_random"
	ActionMenu         Action = "menu"
	ActionCheck        Action = "check"
	ActionRadio        Action = "radio"
	ActionDate         Action = "date"
	ActionMonthYear    Action = "month_year"
	ActionClick        Action = "click"
	ActionWaitIdle     Action = "wait_idle"
)

var knownActions = map[Action]bool{
	ActionInput: true, ActionSelect: true, ActionSelectRandom: true, ActionMenu: true,
	ActionCheck: true, ActionRadio: true, ActionDate: true, ActionMonthYear: true,
	ActionClick: true, ActionWaitIdle: true,
}

// Plan is an ordered list of steps to run against one page.
type Plan struct {
	URL   string `yaml:"url"`
	Steps []Step `yaml:"steps"`
}

// Step is one interaction. The target is found by Selector (CSS) when set,
// otherwise by Label, then by each of Labels in turn.
type Step struct {
	Action   Action   `yaml:"action"`
	Label    string   `yaml:"label,omitempty"`
	Labels   []string `yaml:"labels,omitempty"`
	Selector string   `yaml:"selector,omitempty"`
	Value    string   `yaml:"value,omitempty"`
	Month    int      `yaml:"month,omitempty"`
	Year     int      `yaml:"year,omitempty"`
	// FallbackIndex is the option index used by select when no label matches.
	FallbackIndex *int          `yaml:"fallback_index,omitempty"`
	Timeout       time.Duration `yaml:"timeout,omitempty"`
	// Optional steps log their failure and let the plan continue.
	Optional bool `yaml:"optional,omitempty"`
}

// Target describes how the step finds its element, for logs and reports.
func (s Step) Target() string {
	switch {
	case s.Selector != "":
		return "css=" + s.Selector
	case s.Label != "":
		return s.Label
	case len(s.Labels) > 0:
		return fmt.Sprintf("%q", s.Labels)
	}
	return ""
}

func (s Step) hasTarget() bool {
	return s.Selector != "" || s.Label != "" || len(s.Labels) > 0
}

// Load reads and validates a plan file. The path may start with ~.
func Load(path string) (*Plan, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("could not expand plan path '%s': %w", path, err)
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML plan. Unknown keys are rejected so typos surface early.
func Parse(data []byte) (*Plan, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var p Plan
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("plan is empty")
		}
		return nil, fmt.Errorf("failed to decode plan: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks that every step carries the fields its action needs.
func (p *Plan) Validate() error {
	if len(p.Steps) == 0 {
		return errors.New("plan has no steps")
	}
	for i, s := range p.Steps {
		if err := s.validate(); err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, s.Action, err)
		}
	}
	return nil
}

func (s Step) validate() error {
	if !knownActions[s.Action] {
		return fmt.Errorf("unknown action %q", s.Action)
	}
	if s.Timeout < 0 {
		return errors.New("timeout must not be negative")
	}
	if s.Action == ActionWaitIdle {
		return nil
	}
	if !s.hasTarget() {
		return errors.New("one of selector, label or labels is required")
	}
	switch s.Action {
	case ActionInput, ActionSelect, ActionMenu:
		if s.Value == "" {
			return errors.New("value is required")
		}
	case ActionRadio:
		if s.Label == "" || s.Value == "" {
			return errors.New("radio needs the question as label and the answer as value")
		}
	case ActionMonthYear:
		if s.Month == 0 || s.Year == 0 {
			return errors.New("month and year are required")
		}
	}
	if s.FallbackIndex != nil && s.Action != ActionSelect {
		return errors.New("fallback_index only applies to select")
	}
	return nil
}
