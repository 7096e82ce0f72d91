package dto

import "time"

// PrincipalResponse describes the authenticated caller.
type PrincipalResponse struct {
	UserID    int64      `json:"user_id"`
	Role      string     `json:"role,omitempty"`
	Mode      string     `json:"mode"`
	Degraded  bool       `json:"degraded,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// SweepResponse reports a manually triggered reaper run.
type SweepResponse struct {
	Deactivated int64 `json:"deactivated"`
	Deleted     int64 `json:"deleted"`
}
