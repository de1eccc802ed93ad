package livesession

import "time"

// Status is the derived, never stored, state of a live session.
type Status string

const (
	StatusUpcoming  Status = "upcoming"
	StatusJoinable  Status = "joinable"
	StatusLive      Status = "live"
	StatusCompleted Status = "completed"
	StatusMissed    Status = "missed"
)

const (
	DefaultJoinWindow = 15 * time.Minute
	DefaultDuration   = 2 * time.Hour
)

// Policy holds the timing rules of session status derivation.
type Policy struct {
	// JoinWindow is how long before the start students may connect.
	JoinWindow time.Duration
	// DefaultDuration bounds sessions scheduled without an end time.
	DefaultDuration time.Duration
}

// DefaultPolicy is a 15-minute join window and a 2-hour implicit duration.
var DefaultPolicy = Policy{JoinWindow: DefaultJoinWindow, DefaultDuration: DefaultDuration}

func (p Policy) withDefaults() Policy {
	if p.JoinWindow < 0 {
		p.JoinWindow = 0
	}
	if p.DefaultDuration <= 0 {
		p.DefaultDuration = DefaultDuration
	}
	return p
}

// DeriveStatus evaluates a session at now:
//
//	now < start-JoinWindow               upcoming
//	start-JoinWindow <= now <= start     joinable
//	start < now <= end                   live (end defaults to start+DefaultDuration)
//	now > end                            completed with a recording, missed without
func DeriveStatus(now, start time.Time, end *time.Time, hasRecording bool, policy Policy) Status {
	policy = policy.withDefaults()

	if now.Before(start.Add(-policy.JoinWindow)) {
		return StatusUpcoming
	}
	if !now.After(start) {
		return StatusJoinable
	}

	stop := start.Add(policy.DefaultDuration)
	if end != nil {
		stop = *end
	}
	if !now.After(stop) {
		return StatusLive
	}
	if hasRecording {
		return StatusCompleted
	}
	return StatusMissed
}

// CanJoin reports whether the meeting link may be handed out.
func CanJoin(s Status) bool {
	return s == StatusJoinable || s == StatusLive
}
