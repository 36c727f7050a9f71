// Package reconciler scans the allocation ledger for invariant violations,
// heals the ones that have a safe fix and reports the rest.
package reconciler

import (
	"fmt"
	"time"
)

// ConflictType classifies an integrity violation.
type ConflictType string

const (
	OrphanedReference   ConflictType = "orphaned-reference"
	DuplicateAllocation ConflictType = "duplicate-allocation"
	GenderMismatch      ConflictType = "gender-mismatch"
	CapacityExceeded    ConflictType = "capacity-exceeded"
	AgeGapViolation     ConflictType = "age-gap-violation"
	// PolicyDrift flags roommates who satisfied the tolerance recorded on
	// their allocation but not the current one. It is never resolved.
	PolicyDrift ConflictType = "policy-drift"
)

var knownTypes = map[ConflictType]bool{
	OrphanedReference:   true,
	DuplicateAllocation: true,
	GenderMismatch:      true,
	CapacityExceeded:    true,
	AgeGapViolation:     true,
	PolicyDrift:         true,
}

// ParseConflictType validates a type name taken from configuration.
func ParseConflictType(raw string) (ConflictType, error) {
	t := ConflictType(raw)
	if !knownTypes[t] {
		return "", fmt.Errorf("unknown conflict type %q", raw)
	}
	return t, nil
}

// Conflict is one detected violation.
type Conflict struct {
	Type           ConflictType `json:"type"`
	RoomID         string       `json:"room_id,omitempty"`
	RegistrantIDs  []string     `json:"registrant_ids,omitempty"`
	AllocationIDs  []string     `json:"allocation_ids"`
	Detail         string       `json:"detail"`
	DetectedAt     time.Time    `json:"detected_at"`
	AutoResolvable bool         `json:"auto_resolvable"`
}

// FailedResolution records a resolver error for a conflict.
type FailedResolution struct {
	Conflict Conflict `json:"conflict"`
	Error    string   `json:"error"`
}

// Report is the outcome of one reconciler run.
type Report struct {
	RunID      string             `json:"run_id"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	Conflicts  []Conflict         `json:"conflicts"`
	Resolved   []Conflict         `json:"resolved"`
	Failed     []FailedResolution `json:"failed"`
}

// CountByType tallies detected conflicts per type.
func (r Report) CountByType() map[string]int {
	counts := make(map[string]int)
	for _, c := range r.Conflicts {
		counts[string(c.Type)]++
	}
	return counts
}

// Config is the runtime-adjustable reconciler configuration.
type Config struct {
	Interval        time.Duration  `json:"interval"`
	AutoResolve     []ConflictType `json:"auto_resolve"`
	FlagPolicyDrift bool           `json:"flag_policy_drift"`
}

// Validate rejects non-positive intervals and unknown conflict types.
func (c Config) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", c.Interval)
	}
	for _, t := range c.AutoResolve {
		if !knownTypes[t] {
			return fmt.Errorf("unknown conflict type %q", t)
		}
	}
	return nil
}

// ConfigFromNames builds a Config from plain type names, as read from env.
func ConfigFromNames(interval time.Duration, autoResolve []string, flagPolicyDrift bool) (Config, error) {
	cfg := Config{Interval: interval, FlagPolicyDrift: flagPolicyDrift}
	for _, name := range autoResolve {
		t, err := ParseConflictType(name)
		if err != nil {
			return Config{}, err
		}
		cfg.AutoResolve = append(cfg.AutoResolve, t)
	}
	return cfg, cfg.Validate()
}

func (c Config) autoResolves(t ConflictType) bool {
	for _, candidate := range c.AutoResolve {
		if candidate == t {
			return true
		}
	}
	return false
}
