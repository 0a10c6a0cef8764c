package domain

import "time"

type Role string

const (
	RoleBroadcaster Role = "broadcaster"
	RoleListener    Role = "listener"
	RoleTranslator  Role = "translator"
)

type Participant struct {
	ConnID    string
	SessionID string
	UserID    int64
	Role      Role
	Language  Language // translators only
	JoinedAt  time.Time
}
