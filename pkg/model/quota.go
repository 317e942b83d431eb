package model

import (
	"fmt"
	"time"
)

// Feature names a quota scope. Each feature has its own daily allowance.
type Feature string

const (
	FeatureGenerate Feature = "generate"
	FeatureChat     Feature = "chat"
)

// Validate checks if the feature is known
func (f Feature) Validate() error {
	switch f {
	case FeatureGenerate, FeatureChat:
		return nil
	default:
		return ErrUnknownFeature
	}
}

// QuotaKey is caller identity + feature name
type QuotaKey string

// NewQuotaKey builds the quota key for a caller and feature
func NewQuotaKey(userID UserID, feature Feature) QuotaKey {
	return QuotaKey(string(feature) + ":" + string(userID))
}

// QuotaRecord is the persisted counter for one QuotaKey
type QuotaRecord struct {
	Key         QuotaKey  `firestore:"key"`
	Count       int       `firestore:"count"`
	WindowStart time.Time `firestore:"window_start"`
	Limit       int       `firestore:"limit"`
}

// QuotaDecision is the result of a quota check
type QuotaDecision struct {
	Allowed   bool
	Remaining int
	Limit     int
	ResetAt   time.Time
}

// View converts the decision into its wire representation
func (d *QuotaDecision) View() QuotaView {
	return QuotaView{
		Remaining: d.Remaining,
		Limit:     d.Limit,
		ResetAt:   d.ResetAt,
	}
}

// QuotaView is the quota state reported to clients
type QuotaView struct {
	Remaining int       `json:"remaining"`
	Limit     int       `json:"limit"`
	ResetAt   time.Time `json:"resetAt"`
}

// Exhausted reports whether no call is left before ResetAt
func (v QuotaView) Exhausted(now time.Time) bool {
	return v.Remaining <= 0 && now.Before(v.ResetAt)
}

// QuotaExceededError is returned by clients when the server answered 429
type QuotaExceededError struct {
	Message string
	Quota   QuotaView
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded (limit %d, resets at %s): %s",
		e.Quota.Limit, e.Quota.ResetAt.Format(time.RFC3339), e.Message)
}
