// Package plan maps subscription plans to connection limits and the
// deletion cooldown enforced between successive item removals.
package plan

import (
	"math"
	"time"
)

// Plan identifies a subscription tier.
type Plan string

const (
	Free       Plan = "free"
	Basic      Plan = "basic"
	Plus       Plan = "plus"
	Enterprise Plan = "enterprise"
)

const day = 24 * time.Hour

// Valid reports whether p is a known plan.
func Valid(p Plan) bool {
	switch p {
	case Free, Basic, Plus, Enterprise:
		return true
	}
	return false
}

// MaxConnections returns the maximum number of simultaneously linked
// institutions for a plan. A nil result means unbounded.
func MaxConnections(p Plan) *int {
	var n int
	switch p {
	case Free:
		n = 1
	case Basic:
		n = 3
	case Plus:
		n = 10
	case Enterprise:
		return nil
	default:
		n = 1
	}
	return &n
}

// DeletionCooldown returns the minimum spacing between two item removals
// for the same user. This prevents cycling connect/disconnect to evade
// connection limits.
func DeletionCooldown(p Plan) time.Duration {
	if p == Enterprise {
		return 0
	}
	return 7 * day
}

// DeletionCheck is the outcome of a cooldown evaluation.
type DeletionCheck struct {
	CanDelete     bool
	DaysUntilNext int
}

// CheckDeletion evaluates the cooldown for a user whose most recent item
// removal happened at lastDeletedAt (nil if the user never removed one).
func CheckDeletion(p Plan, lastDeletedAt *time.Time, now time.Time) DeletionCheck {
	cooldown := DeletionCooldown(p)
	if cooldown == 0 || lastDeletedAt == nil {
		return DeletionCheck{CanDelete: true}
	}

	elapsed := now.Sub(*lastDeletedAt)
	if elapsed >= cooldown {
		return DeletionCheck{CanDelete: true}
	}

	remaining := cooldown - elapsed
	days := int(math.Ceil(remaining.Hours() / 24))
	return DeletionCheck{CanDelete: false, DaysUntilNext: days}
}
