package domain

import "time"

// DeviceLogin is one active refresh-capable login for one user on one device.
// SessionID is the issuance timestamp in unix seconds; together with UserID it
// forms the primary key, disambiguating concurrent logins by the same user.
//
// A login either exists with ExpiresAt > RefreshedAt, or does not exist.
// Expiry is never recorded in place; it is detected at next use and the row is
// deleted.
type DeviceLogin struct {
	UserID      string
	SessionID   int64
	RefreshedAt time.Time
	ExpiresAt   time.Time
}
