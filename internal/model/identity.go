package model

// Identity is the verified caller of a request. Streaks are keyed by UserID;
// Email is optional and only used for milestone notifications.
type Identity struct {
	UserID string
	Email  string
}
