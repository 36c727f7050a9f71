package domain

import "time"

// IntSetting defines a typed integer policy value with its valid range.
type IntSetting struct {
	Category string
	Key      string
	Default  int
	Min      int
	Max      int
}

// CacheKey namespaces the setting in the cache layer.
func (s IntSetting) CacheKey() string {
	return "settings:" + s.Category + ":" + s.Key
}

// InRange reports whether v is an acceptable value for the setting.
func (s IntSetting) InRange(v int) bool {
	return v >= s.Min && v <= s.Max
}

// AgeGapToleranceSetting is the maximum age difference between roommates.
var AgeGapToleranceSetting = IntSetting{
	Category: "allocation",
	Key:      "age_gap_tolerance",
	Default:  3,
	Min:      1,
	Max:      20,
}

// SettingRecord is a persisted integer setting value.
type SettingRecord struct {
	Category  string
	Key       string
	Value     int
	UpdatedBy string
	UpdatedAt time.Time
}
