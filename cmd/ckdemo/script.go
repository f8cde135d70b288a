package main

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/odvcencio/componentkit/pkg/changeset"
	"github.com/odvcencio/componentkit/pkg/component"
	apperrors "github.com/odvcencio/componentkit/pkg/errors"
)

// Script is a sequence of table edits replayed by the demo.
//
//	context: ""
//	steps:
//	  - name: seed
//	    insert: {0: alpha, 1: beta}
//	  - remove: [0]
//	    select: [0]
//	  - context: "> "
type Script struct {
	Context string `yaml:"context"`
	Steps   []Step `yaml:"steps"`
}

// Step is one changeset, context reload, or both. Row numbers follow the
// changeset rules: updates and removals use rows before the step, inserts
// and move destinations use rows after it.
type Step struct {
	Name   string         `yaml:"name"`
	Insert map[int]string `yaml:"insert"`
	Update map[int]string `yaml:"update"`
	Remove []int          `yaml:"remove"`
	Move   []MoveStep     `yaml:"move"`
	// Select, when present, replaces the selection after the step.
	Select []int   `yaml:"select"`
	Reload *string `yaml:"context"`
	// Async queues the step without waiting for it to commit and without
	// printing a frame.
	Async bool `yaml:"async"`
	// ExpectError names the error code the step must fail with.
	ExpectError string `yaml:"expect_error"`
}

// MoveStep moves one row.
type MoveStep struct {
	From int `yaml:"from"`
	To   int `yaml:"to"`
}

func loadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeConfigLoad, "reading script").WithContext("path", path)
	}
	return parseScript(data)
}

func parseScript(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeConfigParse, "parsing script")
	}
	for i, step := range s.Steps {
		if !step.hasChanges() && step.Reload == nil && step.Select == nil {
			return nil, apperrors.Newf(apperrors.ErrCodeConfigInvalid, "step %d does nothing", i+1).
				WithContext("step", step.title(i))
		}
	}
	return &s, nil
}

func (s Step) hasChanges() bool {
	return len(s.Insert) > 0 || len(s.Update) > 0 || len(s.Remove) > 0 || len(s.Move) > 0
}

func (s Step) title(index int) string {
	if s.Name != "" {
		return s.Name
	}
	return fmt.Sprintf("step %d", index+1)
}

// changeset converts the step's edits to a section 0 changeset.
func (s Step) changeset() *changeset.Changeset {
	b := changeset.NewBuilder()
	for row, model := range s.Update {
		b.WithUpdatedItem(changeset.Path(0, row), model)
	}
	for _, row := range s.Remove {
		b.WithRemovedItems(changeset.Path(0, row))
	}
	for _, m := range s.Move {
		b.WithMovedItem(changeset.Path(0, m.From), changeset.Path(0, m.To))
	}
	for row, model := range s.Insert {
		b.WithInsertedItem(changeset.Path(0, row), model)
	}
	return b.Build()
}

// demoProvider renders a row as text prefixed with the context. Selected
// rows get a marker; models starting with "!" are boxed.
var demoProvider = component.ProviderFunc(func(model any, selected bool, ctx any) (component.Component, error) {
	text, ok := model.(string)
	if !ok {
		return nil, fmt.Errorf("unsupported model %T", model)
	}
	if strings.HasPrefix(text, "fail") {
		return nil, fmt.Errorf("refusing to build %q", text)
	}
	prefix, _ := ctx.(string)
	if selected {
		prefix = "* " + prefix
	}
	if boxed, ok := strings.CutPrefix(text, "!"); ok {
		return component.NewBorder(component.NewText(prefix+boxed, 0)), nil
	}
	return component.NewText(prefix+text, 0), nil
})
