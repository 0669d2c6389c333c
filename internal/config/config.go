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

// Package config loads sheaf's configuration from sheaf.yaml, SHEAF_*
// environment variables and command flags.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"bennypowers.dev/sheaf/build"
	"bennypowers.dev/sheaf/hot"
	"bennypowers.dev/sheaf/internal/logging"
	"bennypowers.dev/sheaf/pipeline"
	"bennypowers.dev/sheaf/pipeline/less"
	"bennypowers.dev/sheaf/pipeline/sass"
)

// CompilerConfig configures an external preprocessor.
type CompilerConfig struct {
	Binary       string   `mapstructure:"binary"`
	IncludePaths []string `mapstructure:"includePaths"`
}

// Config is the merged configuration of a sheaf invocation.
type Config struct {
	Entries    []string       `mapstructure:"entries"`
	FileName   string         `mapstructure:"fileName"`
	Extensions []string       `mapstructure:"extensions"`
	Stages     []string       `mapstructure:"stages"`
	Hot        bool           `mapstructure:"hot"`
	HotAPI     string         `mapstructure:"hotApi"`
	URL        bool           `mapstructure:"url"`
	PublicPath string         `mapstructure:"publicPath"`
	Exclude    []string       `mapstructure:"exclude"`
	OutDir     string         `mapstructure:"outDir"`
	AssetsDir  string         `mapstructure:"assetsDir"`
	Jobs       int            `mapstructure:"jobs"`
	LogLevel   string         `mapstructure:"logLevel"`
	Sass       CompilerConfig `mapstructure:"sass"`
	Less       CompilerConfig `mapstructure:"less"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	d := build.DefaultOptions()
	v.SetDefault("entries", []string{})
	v.SetDefault("fileName", d.FileName)
	v.SetDefault("extensions", d.Extensions)
	v.SetDefault("stages", []string{})
	v.SetDefault("hot", false)
	v.SetDefault("hotApi", string(d.HotAPI))
	v.SetDefault("url", d.ResolveURLs)
	v.SetDefault("publicPath", "")
	v.SetDefault("exclude", []string{})
	v.SetDefault("outDir", "dist")
	v.SetDefault("assetsDir", "assets")
	v.SetDefault("jobs", 0)
	v.SetDefault("logLevel", "info")
	v.SetDefault("sass.binary", "")
	v.SetDefault("sass.includePaths", []string{})
	v.SetDefault("less.binary", "lessc")
	v.SetDefault("less.includePaths", []string{})
}

// Load reads sheaf.yaml (or .sheaf.yaml) from dir if present, applies
// SHEAF_ environment variables and validates the result. Flags bound to v
// before Load take precedence.
func Load(v *viper.Viper, dir string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix("SHEAF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for _, name := range []string{"sheaf", ".sheaf"} {
		v.SetConfigName(name)
		v.SetConfigType("yaml")
		v.AddConfigPath(dir)
		err := v.ReadInConfig()
		if err == nil {
			break
		}
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate reports every invalid key.
func (c *Config) Validate() error {
	var errs []error
	if c.FileName == "" {
		errs = append(errs, errors.New("fileName: must not be empty"))
	}
	if len(c.Extensions) == 0 {
		errs = append(errs, errors.New("extensions: must not be empty"))
	}
	for _, ext := range c.Extensions {
		if !strings.HasPrefix(ext, ".") {
			errs = append(errs, fmt.Errorf("extensions: %q must start with '.'", ext))
		}
	}
	for _, name := range c.Stages {
		if _, err := pipeline.Named(name); err != nil {
			errs = append(errs, fmt.Errorf("stages: %w", err))
		}
	}
	if _, err := hot.ParseAPI(c.HotAPI); err != nil {
		errs = append(errs, fmt.Errorf("hotApi: %w", err))
	}
	for _, pattern := range c.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			errs = append(errs, fmt.Errorf("exclude: invalid pattern %q", pattern))
		}
	}
	if c.Jobs < 0 {
		errs = append(errs, fmt.Errorf("jobs: must not be negative, got %d", c.Jobs))
	}
	if !slices.Contains(logging.Levels, c.LogLevel) {
		errs = append(errs, fmt.Errorf("logLevel: unknown level %q (want one of %s)",
			c.LogLevel, strings.Join(logging.Levels, ", ")))
	}
	return errors.Join(errs...)
}

// SessionOptions converts c into build options. c must be valid.
func (c *Config) SessionOptions() (build.Options, error) {
	api, err := hot.ParseAPI(c.HotAPI)
	if err != nil {
		return build.Options{}, err
	}
	specs := make([]pipeline.Spec, 0, len(c.Stages))
	for _, name := range c.Stages {
		spec, err := pipeline.Named(name)
		if err != nil {
			return build.Options{}, err
		}
		specs = append(specs, spec)
	}
	return build.Options{
		FileName:    c.FileName,
		Extensions:  slices.Clone(c.Extensions),
		Stages:      specs,
		Hot:         c.Hot,
		HotAPI:      api,
		ResolveURLs: c.URL,
		PublicPath:  c.PublicPath,
		Exclude:     slices.Clone(c.Exclude),
	}, nil
}

// Builtins creates the preprocessors the configured stages name. The
// returned function releases them.
func (c *Config) Builtins(log *zap.Logger) (pipeline.Builtins, func() error) {
	builtins := pipeline.Builtins{}
	var closers []func() error
	for _, name := range c.Stages {
		spec, err := pipeline.Named(name)
		if err != nil {
			continue
		}
		if _, ok := builtins[spec.Kind]; ok {
			continue
		}
		switch spec.Kind {
		case pipeline.KindSass:
			compiler := sass.New(sass.Options{
				Binary:       c.Sass.Binary,
				IncludePaths: c.Sass.IncludePaths,
				Logger:       log,
			})
			builtins[spec.Kind] = compiler
			closers = append(closers, compiler.Close)
		case pipeline.KindLess:
			builtins[spec.Kind] = less.New(less.Options{
				Binary:       c.Less.Binary,
				IncludePaths: c.Less.IncludePaths,
				Logger:       log,
			})
		}
	}
	return builtins, func() error {
		var errs []error
		for _, fn := range closers {
			errs = append(errs, fn())
		}
		return errors.Join(errs...)
	}
}
