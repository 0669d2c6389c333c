/*
Copyright © 2026 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package pipeline runs an ordered chain of stylesheet transformation
// stages over one module, threading code, source map and watch files
// from each stage to the next.
package pipeline

import (
	"context"
	"fmt"
	"slices"
)

// Input is the state carried between stages.
type Input struct {
	// Code is the stylesheet text produced by the previous stage.
	Code string
	// Map is the source map for Code, if the previous stage produced one.
	// Its sources are relative to the module's directory.
	Map []byte
	// WatchFiles are extra files the module's output depends on.
	WatchFiles []string
}

// Stage transforms one module's stylesheet. id is the module's absolute
// path. Implementations must be safe to call concurrently for different
// modules.
type Stage interface {
	Name() string
	Transform(ctx context.Context, in Input, id string) (Input, error)
}

type funcStage struct {
	name string
	fn   func(ctx context.Context, in Input, id string) (Input, error)
}

func (s funcStage) Name() string { return s.name }

func (s funcStage) Transform(ctx context.Context, in Input, id string) (Input, error) {
	return s.fn(ctx, in, id)
}

// Func adapts a function to a Stage.
func Func(name string, fn func(ctx context.Context, in Input, id string) (Input, error)) Stage {
	return funcStage{name: name, fn: fn}
}

// StageError reports a failed stage. The module is not registered.
type StageError struct {
	Stage string
	ID    string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: stage %s: %v", e.ID, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Pipeline is an immutable, ordered list of stages.
type Pipeline struct {
	stages []Stage
}

// New creates a pipeline from already-resolved stages.
func New(stages ...Stage) *Pipeline {
	return &Pipeline{stages: slices.Clone(stages)}
}

// Append returns a new pipeline with stage added at the end.
func (p *Pipeline) Append(stage Stage) *Pipeline {
	return &Pipeline{stages: append(slices.Clone(p.stages), stage)}
}

// Stages returns the names of the stages in run order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// Run applies every stage to code in order, each one finishing before the
// next begins. The returned map is whatever the last stage produced; watch
// files accumulate across stages without duplicates.
func (p *Pipeline) Run(ctx context.Context, code, id string) (Input, error) {
	in := Input{Code: code}
	for _, stage := range p.stages {
		if err := ctx.Err(); err != nil {
			return Input{}, err
		}
		out, err := stage.Transform(ctx, in, id)
		if err != nil {
			return Input{}, &StageError{Stage: stage.Name(), ID: id, Err: err}
		}
		out.WatchFiles = mergeWatchFiles(in.WatchFiles, out.WatchFiles)
		in = out
	}
	return in, nil
}

func mergeWatchFiles(prev, next []string) []string {
	if len(next) == 0 {
		return prev
	}
	seen := make(map[string]bool, len(prev)+len(next))
	merged := make([]string, 0, len(prev)+len(next))
	for _, list := range [][]string{prev, next} {
		for _, f := range list {
			if !seen[f] {
				seen[f] = true
				merged = append(merged, f)
			}
		}
	}
	return merged
}
