package dto

import "time"

// ToleranceRequest sets the age-gap tolerance. Range checks happen in the
// settings service so they surface as POLICY_OUT_OF_RANGE.
type ToleranceRequest struct {
	Value *int `json:"value" validate:"required"`
}

// ToleranceResponse reports the active tolerance.
type ToleranceResponse struct {
	Value int `json:"value"`
}

// ReconcilerConfigRequest replaces the reconciler configuration.
type ReconcilerConfigRequest struct {
	IntervalSeconds int      `json:"interval_seconds" validate:"required,min=1"`
	AutoResolve     []string `json:"auto_resolve"`
	FlagPolicyDrift bool     `json:"flag_policy_drift"`
}

// ReconcilerStatusResponse is the wire form of the supervisor status.
type ReconcilerStatusResponse struct {
	Running         bool     `json:"running"`
	Phase           string   `json:"phase"`
	IntervalSeconds int      `json:"interval_seconds"`
	AutoResolve     []string `json:"auto_resolve"`
	FlagPolicyDrift bool     `json:"flag_policy_drift"`
	Runs            int      `json:"runs"`
	LastRunID       string   `json:"last_run_id,omitempty"`
	LastRunAt       *time.Time `json:"last_run_at,omitempty"`
	LastError       string   `json:"last_error,omitempty"`
	NextScanAt      *time.Time `json:"next_scan_at,omitempty"`
}
