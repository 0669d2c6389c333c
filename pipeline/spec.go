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
package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// Kind tags a stage specification.
type Kind int

const (
	// KindSass is the built-in Sass/SCSS compiler.
	KindSass Kind = iota + 1
	// KindLess is the built-in LESS compiler.
	KindLess
	// KindCustom is a caller-supplied stage.
	KindCustom
)

func (k Kind) String() string {
	switch k {
	case KindSass:
		return "sass"
	case KindLess:
		return "less"
	case KindCustom:
		return "custom"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ErrUnknownStage is returned for stage names that are not built in.
var ErrUnknownStage = errors.New("unknown stage")

// Spec describes one configured stage before it is resolved.
type Spec struct {
	Kind  Kind
	Stage Stage // set only for KindCustom
}

// Named parses a configured stage name.
func Named(name string) (Spec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "scss", "sass":
		return Spec{Kind: KindSass}, nil
	case "less":
		return Spec{Kind: KindLess}, nil
	}
	return Spec{}, fmt.Errorf("%w: %q", ErrUnknownStage, name)
}

// Custom wraps a caller-supplied stage.
func Custom(stage Stage) Spec {
	return Spec{Kind: KindCustom, Stage: stage}
}

// Builtins supplies the implementation of each built-in kind.
type Builtins map[Kind]Stage

// Build resolves specs once into a pipeline. A built-in kind without an
// implementation in builtins is an error.
func Build(specs []Spec, builtins Builtins) (*Pipeline, error) {
	stages := make([]Stage, 0, len(specs))
	var errs []error
	for i, spec := range specs {
		switch spec.Kind {
		case KindCustom:
			if spec.Stage == nil {
				errs = append(errs, fmt.Errorf("stage %d: custom stage is nil", i))
				continue
			}
			stages = append(stages, spec.Stage)
		case KindSass, KindLess:
			stage, ok := builtins[spec.Kind]
			if !ok || stage == nil {
				errs = append(errs, fmt.Errorf("stage %d: %s compiler is not available", i, spec.Kind))
				continue
			}
			stages = append(stages, stage)
		default:
			errs = append(errs, fmt.Errorf("stage %d: %w: %s", i, ErrUnknownStage, spec.Kind))
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return New(stages...), nil
}
