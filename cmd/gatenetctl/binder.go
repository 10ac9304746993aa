package main

import (
	"flag"
	"fmt"
	"strconv"
	"strings"

	"gatenet/internal/config"
)

// binder registers flags whose defaults come from config.Default and which,
// when given on the command line, overwrite the loaded run config.
type binder struct {
	fs      *flag.FlagSet
	def     config.RunConfig
	setters map[string]func(*config.RunConfig) error
}

func newBinder(fs *flag.FlagSet) *binder {
	return &binder{
		fs:      fs,
		def:     config.Default(),
		setters: make(map[string]func(*config.RunConfig) error),
	}
}

func (b *binder) String(name, usage string, field func(*config.RunConfig) *string) {
	v := b.fs.String(name, *field(&b.def), usage)
	b.setters[name] = func(c *config.RunConfig) error {
		*field(c) = *v
		return nil
	}
}

func (b *binder) Int(name, usage string, field func(*config.RunConfig) *int) {
	v := b.fs.Int(name, *field(&b.def), usage)
	b.setters[name] = func(c *config.RunConfig) error {
		*field(c) = *v
		return nil
	}
}

func (b *binder) Int64(name, usage string, field func(*config.RunConfig) *int64) {
	v := b.fs.Int64(name, *field(&b.def), usage)
	b.setters[name] = func(c *config.RunConfig) error {
		*field(c) = *v
		return nil
	}
}

func (b *binder) Float64(name, usage string, field func(*config.RunConfig) *float64) {
	v := b.fs.Float64(name, *field(&b.def), usage)
	b.setters[name] = func(c *config.RunConfig) error {
		*field(c) = *v
		return nil
	}
}

func (b *binder) Bool(name, usage string, field func(*config.RunConfig) *bool) {
	v := b.fs.Bool(name, *field(&b.def), usage)
	b.setters[name] = func(c *config.RunConfig) error {
		*field(c) = *v
		return nil
	}
}

// Ints binds a comma separated list such as "4,3".
func (b *binder) Ints(name, usage string, field func(*config.RunConfig) *[]int) {
	v := b.fs.String(name, formatInts(*field(&b.def)), usage)
	b.setters[name] = func(c *config.RunConfig) error {
		values, err := parseInts(*v)
		if err != nil {
			return fmt.Errorf("-%s: %w", name, err)
		}
		*field(c) = values
		return nil
	}
}

// load reads path over the defaults, or uses the defaults when path is empty,
// then applies the flags that were set explicitly.
func (b *binder) load(path string) (config.RunConfig, error) {
	cfg := config.Default()
	if strings.TrimSpace(path) != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.RunConfig{}, err
		}
		cfg = loaded
	}

	var err error
	b.fs.Visit(func(f *flag.Flag) {
		if err != nil {
			return
		}
		if set, ok := b.setters[f.Name]; ok {
			err = set(&cfg)
		}
	})
	if err != nil {
		return config.RunConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.RunConfig{}, err
	}
	return cfg, nil
}

func parseInts(raw string) ([]int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]int, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func formatInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}
