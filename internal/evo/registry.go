package evo

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

var (
	ErrSelectorExists   = errors.New("selector already registered")
	ErrSelectorNotFound = errors.New("selector not found")
)

// SelectorFactory builds a selector from optional colon-separated
// parameters, e.g. "tournament:5:0.5".
type SelectorFactory func(params []float64) (Selector, error)

var selectorRegistry = struct {
	mu sync.RWMutex
	m  map[string]SelectorFactory
}{
	m: map[string]SelectorFactory{
		"power": func(p []float64) (Selector, error) {
			s := PowerSelector{Power: 4}
			if len(p) > 0 {
				s.Power = p[0]
			}
			if s.Power <= 0 {
				return nil, fmt.Errorf("power must be > 0: %v", s.Power)
			}
			return s, nil
		},
		"fitness_proportionate": func([]float64) (Selector, error) {
			return FitnessProportionateSelector{}, nil
		},
		"tournament": func(p []float64) (Selector, error) {
			s := TournamentSelector{Size: 5, Probability: 0.5}
			if len(p) > 0 {
				s.Size = int(p[0])
			}
			if len(p) > 1 {
				s.Probability = p[1]
			}
			if s.Size <= 0 || s.Probability < 0 || s.Probability > 1 {
				return nil, fmt.Errorf("invalid tournament size=%d probability=%v", s.Size, s.Probability)
			}
			return s, nil
		},
	},
}

func RegisterSelector(name string, factory SelectorFactory) error {
	if name == "" {
		return errors.New("selector name is required")
	}
	if factory == nil {
		return errors.New("selector factory is required")
	}
	selectorRegistry.mu.Lock()
	defer selectorRegistry.mu.Unlock()
	if _, exists := selectorRegistry.m[name]; exists {
		return fmt.Errorf("%w: %s", ErrSelectorExists, name)
	}
	selectorRegistry.m[name] = factory
	return nil
}

// ParseSelector resolves a selector spec of the form name[:param...].
func ParseSelector(spec string) (Selector, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(spec)), ":")
	selectorRegistry.mu.RLock()
	factory, ok := selectorRegistry.m[parts[0]]
	selectorRegistry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSelectorNotFound, spec)
	}
	params := make([]float64, 0, len(parts)-1)
	for _, raw := range parts[1:] {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("selector %s: parameter %q: %w", parts[0], raw, err)
		}
		params = append(params, v)
	}
	return factory(params)
}

func ListSelectors() []string {
	selectorRegistry.mu.RLock()
	defer selectorRegistry.mu.RUnlock()

	names := make([]string, 0, len(selectorRegistry.m))
	for name := range selectorRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
