package auth

import "time"

// LockState is the per-user login lockout state as stored on the user row.
type LockState struct {
	FailedAttempts int
	BlockedUntil   *time.Time
}

// LockoutPolicy computes lockout transitions for password login attempts.
// It is pure: callers persist the returned state themselves.
type LockoutPolicy struct {
	AttemptLimit int
	BlockWindow  time.Duration
}

// IsBlocked reports whether a user is blocked at the given instant. A nil
// blockedUntil means the user was never blocked; unblocking is implicit,
// there is no stored flag to drift from the clock.
func IsBlocked(now time.Time, blockedUntil *time.Time) bool {
	return blockedUntil != nil && blockedUntil.After(now)
}

// OnFailure returns the state after a failed password attempt. The counter
// increments until it exceeds the limit, at which point it resets to zero
// and the block window opens.
func (p LockoutPolicy) OnFailure(state LockState, now time.Time) LockState {
	attempts := state.FailedAttempts + 1
	if attempts > p.AttemptLimit {
		until := now.Add(p.BlockWindow)
		return LockState{FailedAttempts: 0, BlockedUntil: &until}
	}
	return LockState{FailedAttempts: attempts, BlockedUntil: state.BlockedUntil}
}

// OnSuccess returns the state after a successful password match: the
// counter resets regardless of its prior value.
func (p LockoutPolicy) OnSuccess(state LockState) LockState {
	return LockState{FailedAttempts: 0, BlockedUntil: state.BlockedUntil}
}

// AttemptsLeft returns how many more failures the state absorbs before a
// block opens.
func (p LockoutPolicy) AttemptsLeft(state LockState) int {
	left := p.AttemptLimit - state.FailedAttempts
	if left < 0 {
		return 0
	}
	return left
}
