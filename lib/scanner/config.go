// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scanner

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
)

// Knob describes one tuning value a scanner bound during Init.
type Knob struct {
	Scanner     string
	Key         string
	Default     string
	Description string
}

// Config hands scanner tuning values to Init. Values come from the
// run configuration's scanner_config map as strings; each binding call
// parses the value for key, if present, into binding and records the
// knob for help output. A binding left untouched keeps its default.
type Config struct {
	values   map[string]string
	used     map[string]bool
	knobs    []Knob
	errs     []error
	scanning string
}

// NewConfig returns a Config over values. A nil map is allowed.
func NewConfig(values map[string]string) *Config {
	return &Config{values: values, used: make(map[string]bool)}
}

// Uint64 binds an unsigned knob. Hex (0x) and octal (0o) prefixes are
// accepted.
func (c *Config) Uint64(key string, binding *uint64, description string) {
	c.record(key, strconv.FormatUint(*binding, 10), description)
	if text, ok := c.lookup(key); ok {
		value, err := strconv.ParseUint(text, 0, 64)
		if err != nil {
			c.errs = append(c.errs, fmt.Errorf("scanner config %s=%q: %w", key, text, err))
			return
		}
		*binding = value
	}
}

// String binds a string knob.
func (c *Config) String(key string, binding *string, description string) {
	c.record(key, *binding, description)
	if text, ok := c.lookup(key); ok {
		*binding = text
	}
}

// Bool binds a boolean knob.
func (c *Config) Bool(key string, binding *bool, description string) {
	c.record(key, strconv.FormatBool(*binding), description)
	if text, ok := c.lookup(key); ok {
		value, err := strconv.ParseBool(text)
		if err != nil {
			c.errs = append(c.errs, fmt.Errorf("scanner config %s=%q: %w", key, text, err))
			return
		}
		*binding = value
	}
}

func (c *Config) lookup(key string) (string, bool) {
	text, ok := c.values[key]
	if ok {
		c.used[key] = true
	}
	return text, ok
}

func (c *Config) record(key, defaultValue, description string) {
	c.knobs = append(c.knobs, Knob{
		Scanner:     c.scanning,
		Key:         key,
		Default:     defaultValue,
		Description: description,
	})
}

// Knobs returns every knob bound so far, in binding order.
func (c *Config) Knobs() []Knob {
	return append([]Knob(nil), c.knobs...)
}

// Unused returns the configured keys no scanner bound, sorted.
func (c *Config) Unused() []string {
	var unused []string
	for key := range c.values {
		if !c.used[key] {
			unused = append(unused, key)
		}
	}
	sort.Strings(unused)
	return unused
}

// Err returns the parse errors collected so far, joined.
func (c *Config) Err() error {
	return errors.Join(c.errs...)
}
