package domain

import "time"

// CancellationPenalty tracks a user's cancellations in a rolling window.
// Flagged is sticky; clearing it is a manual review decision.
type CancellationPenalty struct {
	UserID    string    `json:"user_id"`
	Count     int       `json:"count"`
	LastReset time.Time `json:"last_reset"`
	Flagged   bool      `json:"flagged"`
	UpdatedAt time.Time `json:"updated_at"`
}
