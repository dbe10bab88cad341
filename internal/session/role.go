package session

// Role determines which half of every protocol branch a participant
// executes. Exactly one broadcaster exists per room, determined by room
// ownership; everyone else is a receiver.
type Role int

const (
	RoleBroadcaster Role = iota
	RoleReceiver
)

func (r Role) String() string {
	if r == RoleBroadcaster {
		return "broadcaster"
	}
	return "receiver"
}

// Room is the slice of room metadata the session reads. The room itself is
// owned by the membership collaborator.
type Room struct {
	ID            string
	BroadcasterID string
}

// ResolveRole derives the local participant's role from room ownership.
// It is evaluated once at (re)join: the role stays fixed for the lifetime
// of the membership even if room ownership changes mid-session. That
// staleness is a known, accepted limitation.
func ResolveRole(room Room, localUserID string) Role {
	if room.BroadcasterID == localUserID {
		return RoleBroadcaster
	}
	return RoleReceiver
}
