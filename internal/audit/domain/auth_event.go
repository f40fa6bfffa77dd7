package domain

import "time"

// Actions recorded by the auth code paths.
const (
	ActionRegister     = "auth.register"
	ActionLogin        = "auth.login"
	ActionLoginFailed  = "auth.login_failed"
	ActionRefresh      = "auth.refresh"
	ActionLogout       = "auth.logout"
	ActionDeactivate   = "user.deactivate"
	ActionProfileWrite = "user.update"
)

// AuthEvent represents one audited authentication event. UserID is the
// external identifier and may be empty (e.g. failed login for an unknown
// contact).
type AuthEvent struct {
	ID        string
	UserID    string
	Action    string
	IP        string
	Metadata  string
	CreatedAt time.Time
}
