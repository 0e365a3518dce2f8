package model

import "time"

// SnapshotEntry is the live view of one pooled credential.
type SnapshotEntry struct {
	ID            int64
	Priority      int
	Disabled      bool
	FailureCount  int
	ExpiresAt     *time.Time
	AuthMethod    AuthMethod
	HasProfileArn bool
}

// Snapshot is a point-in-time read of the rotation pool.
type Snapshot struct {
	Entries   []SnapshotEntry
	CurrentID int64 // 0 when nothing is selected
	Available int
}

// UsageInfo is the upstream's view of a credential's consumption.
type UsageInfo struct {
	SubscriptionTitle string
	CurrentUsage      float64
	UsageLimit        float64
	NextResetAt       *time.Time
}

// Balance is UsageInfo projected for administrators.
type Balance struct {
	ID                int64
	SubscriptionTitle string
	CurrentUsage      float64
	UsageLimit        float64
	Remaining         float64
	UsagePercentage   float64
	NextResetAt       *time.Time
}

// NewBalance computes remaining quota and a clamped usage percentage.
func NewBalance(id int64, u UsageInfo) Balance {
	remaining := max(u.UsageLimit-u.CurrentUsage, 0)

	var pct float64
	if u.UsageLimit > 0 {
		pct = min(u.CurrentUsage/u.UsageLimit*100, 100)
	}

	return Balance{
		ID:                id,
		SubscriptionTitle: u.SubscriptionTitle,
		CurrentUsage:      u.CurrentUsage,
		UsageLimit:        u.UsageLimit,
		Remaining:         remaining,
		UsagePercentage:   pct,
		NextResetAt:       u.NextResetAt,
	}
}

// RefreshedToken is the result of exchanging a refresh token.
type RefreshedToken struct {
	AccessToken  string
	RefreshToken string // empty when the upstream did not rotate it
	ProfileArn   string
	ExpiresAt    time.Time
}

// FailoverOutcome reports the switch attempted after disabling the current
// credential.
type FailoverOutcome struct {
	Attempted    bool
	Switched     bool
	PreviousID   int64
	NewCurrentID int64
	Error        string
}
