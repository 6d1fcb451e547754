// Package policy loads the signal/alert-settings pack and serves lookups to
// the write path.
package policy

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/sentinelstack/sentinel/internal/models"
	"github.com/sentinelstack/sentinel/internal/utils"
)

// Entry pairs a signal with its one active threshold policy.
type Entry struct {
	Signal models.Signal
	Policy models.ThresholdPolicy
}

// packFile is the YAML root of a policy pack.
type packFile struct {
	Signals []packSignal `yaml:"signals"`
}

// packSignal mirrors models.Signal plus the nested alert settings. Active
// defaults to true when omitted, which yaml bools cannot express directly.
type packSignal struct {
	Key          string            `yaml:"key"`
	Name         string            `yaml:"name"`
	Organization string            `yaml:"organization"`
	Target       *models.ObjectRef `yaml:"target"`
	Fields       []string          `yaml:"fields"`
	AlertFields  []string          `yaml:"alert_fields"`
	Alert        packAlert         `yaml:"alert"`
}

type packAlert struct {
	Operator    models.Operator `yaml:"operator"`
	Threshold   float64         `yaml:"threshold"`
	Tolerance   int             `yaml:"tolerance"`
	Active      *bool           `yaml:"active"`
	ProblemVerb string          `yaml:"problem_verb"`
}

// Registry holds the loaded pack and supports atomic reloads.
type Registry struct {
	mu      sync.RWMutex
	path    string
	entries map[string]Entry
	logger  *slog.Logger
}

// NewRegistry loads the pack at path. The file must exist and parse; a signal
// without a valid policy fails the whole load.
func NewRegistry(path string, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	entries, err := loadPack(path)
	if err != nil {
		return nil, utils.NewAppError("policy: load pack", path, err)
	}
	return &Registry{path: path, entries: entries, logger: logger}, nil
}

func loadPack(path string) (map[string]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy pack: %w", err)
	}
	var file packFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse policy pack: %w", err)
	}

	entries := make(map[string]Entry, len(file.Signals))
	for _, ps := range file.Signals {
		if ps.Key == "" {
			return nil, fmt.Errorf("policy pack: signal with empty key")
		}
		if _, dup := entries[ps.Key]; dup {
			return nil, fmt.Errorf("policy pack: duplicate signal %q", ps.Key)
		}
		signal := models.Signal{
			Key:          ps.Key,
			Name:         ps.Name,
			Organization: ps.Organization,
			Target:       ps.Target,
			Fields:       ps.Fields,
			AlertFields:  ps.AlertFields,
		}
		if signal.Name == "" {
			signal.Name = signal.Key
		}
		active := true
		if ps.Alert.Active != nil {
			active = *ps.Alert.Active
		}
		pol := models.ThresholdPolicy{
			Operator:    ps.Alert.Operator,
			Threshold:   ps.Alert.Threshold,
			Tolerance:   ps.Alert.Tolerance,
			Active:      active,
			ProblemVerb: ps.Alert.ProblemVerb,
		}
		if err := pol.Validate(&signal); err != nil {
			return nil, err
		}
		entries[ps.Key] = Entry{Signal: signal, Policy: pol}
	}
	return entries, nil
}

// Lookup returns the entry for a signal key.
func (r *Registry) Lookup(key string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[key]
	return entry, ok
}

// Keys returns the registered signal keys in stable order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of registered signals.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Reload re-reads the pack from disk. On failure the previous pack stays
// active and the error is returned.
func (r *Registry) Reload() error {
	entries, err := loadPack(r.path)
	if err != nil {
		return utils.NewAppError("policy: reload pack", r.path, err)
	}
	r.mu.Lock()
	r.entries = entries
	r.mu.Unlock()
	r.logger.Info("policy pack reloaded", slog.String("path", r.path), slog.Int("signals", len(entries)))
	return nil
}
