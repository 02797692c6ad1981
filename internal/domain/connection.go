package domain

import "time"

type ConnID string

// Connection is the meta of one live transport session.
// No transport or lifecycle logic here.
type Connection struct {
	ID        ConnID
	Role      Role
	Device    DeviceID // last device identity joined, empty until the first join
	Principal Principal
	CreatedAt time.Time
}

// Principal is whoever the token-verification collaborator said owns the connection.
// Zero value means anonymous.
type Principal struct {
	UserID string `json:"user_id,omitempty"`
}

func (p Principal) Anonymous() bool { return p.UserID == "" }
