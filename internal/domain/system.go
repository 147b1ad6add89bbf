package domain

import "time"

// LicenseStatus is the cached result of the most recent license check.
type LicenseStatus struct {
	Available bool       `json:"available"`
	CheckedAt time.Time  `json:"checkedAt"`
	NextCheck *time.Time `json:"nextCheck,omitempty"`
}

// SystemStatus is the process-wide snapshot served to observers. CurrentJob
// is nil unless a job holds the single run slot.
type SystemStatus struct {
	License     LicenseStatus `json:"license"`
	CurrentJob  *string       `json:"currentJob"`
	QueueLength int           `json:"queueLength"`
}
