// MIT License
//
// Copyright (c) 2025 DaggerTech
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package topic validates and matches MQTT topic names and topic filters,
// and keeps the ordered set of filters a connection is subscribed to.
package topic

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

var (
	// ErrInvalidFilter is returned for a malformed subscription filter.
	ErrInvalidFilter = errors.New("invalid topic filter")
	// ErrInvalidName is returned for a malformed publish topic name.
	ErrInvalidName = errors.New("invalid topic name")
)

// ValidateName checks a topic name used for publishing.
// Names may not be empty and may not contain wildcards.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if strings.ContainsAny(name, "+#") {
		return fmt.Errorf("%w: %q contains a wildcard", ErrInvalidName, name)
	}
	if strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: %q contains NUL", ErrInvalidName, name)
	}
	return nil
}

// ValidateFilter checks a subscription filter.
// "+" must occupy a whole level; "#" must occupy the last level.
func ValidateFilter(filter string) error {
	if filter == "" {
		return fmt.Errorf("%w: empty", ErrInvalidFilter)
	}
	if strings.ContainsRune(filter, 0) {
		return fmt.Errorf("%w: %q contains NUL", ErrInvalidFilter, filter)
	}
	levels := strings.Split(filter, "/")
	for i, level := range levels {
		switch {
		case level == "#" && i != len(levels)-1:
			return fmt.Errorf("%w: %q has '#' before the last level", ErrInvalidFilter, filter)
		case level != "#" && strings.Contains(level, "#"):
			return fmt.Errorf("%w: %q has '#' inside a level", ErrInvalidFilter, filter)
		case level != "+" && strings.Contains(level, "+"):
			return fmt.Errorf("%w: %q has '+' inside a level", ErrInvalidFilter, filter)
		}
	}
	return nil
}

// Match reports whether the topic name is matched by filter.
// Names starting with '$' are not matched by a leading wildcard.
// Example:
//
//	topic.Match("sensors/+/temp", "sensors/kitchen/temp") // true
func Match(filter, name string) bool {
	if strings.HasPrefix(name, "$") && (strings.HasPrefix(filter, "+") || strings.HasPrefix(filter, "#")) {
		return false
	}
	fl := strings.Split(filter, "/")
	nl := strings.Split(name, "/")
	for i, f := range fl {
		if f == "#" {
			return true
		}
		if i >= len(nl) {
			return false
		}
		if f != "+" && f != nl[i] {
			return false
		}
	}
	return len(fl) == len(nl)
}

// Filters is an ordered, duplicate-free set of subscription filters.
// It is safe for concurrent use.
type Filters struct {
	filters []string
	mutex   sync.Mutex
}

// New creates a set holding the given filters.
// Returns an error if any filter is malformed.
func New(filters ...string) (*Filters, error) {
	f := &Filters{}
	if err := f.Add(filters...); err != nil {
		return nil, err
	}
	return f, nil
}

// Add appends filters that are not already present.
// Nothing is added if any filter is malformed.
// Example:
//
//	filters.Add("weather/#", "news/+")
func (f *Filters) Add(filters ...string) error {
	for _, filter := range filters {
		if err := ValidateFilter(filter); err != nil {
			return err
		}
	}
	f.mutex.Lock()
	defer f.mutex.Unlock()
	for _, filter := range filters {
		if !slices.Contains(f.filters, filter) {
			f.filters = append(f.filters, filter)
		}
	}
	return nil
}

// Remove deletes a filter. It is a no-op if the filter is not present.
func (f *Filters) Remove(filter string) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if i := slices.Index(f.filters, filter); i >= 0 {
		f.filters = slices.Delete(f.filters, i, i+1)
	}
}

// List returns a copy of the filters in insertion order.
func (f *Filters) List() []string {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return slices.Clone(f.filters)
}

// Len returns the number of filters.
func (f *Filters) Len() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return len(f.filters)
}

// Matches reports whether any filter in the set matches name.
func (f *Filters) Matches(name string) bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	for _, filter := range f.filters {
		if Match(filter, name) {
			return true
		}
	}
	return false
}
