// Package sessiontypes contains the session record shared by the session
// manager, its storage media, and the login client.
package sessiontypes

import (
	"time"

	"github.com/classpad/sessioncore/access"
	"github.com/classpad/sessioncore/util"
)

// User is the signed-in account as returned by the login endpoint.
type User struct {
	ID       string        `json:"id"`
	Username string        `json:"username"`
	Email    string        `json:"email"`
	Avatar   string        `json:"avatar"`
	Roles    []access.Role `json:"roles"`
}

// RoleSet returns the user's roles normalized, with empty entries dropped,
// and deduplicated. Membership is all that matters; order carries no meaning.
func (u User) RoleSet() []access.Role {
	roles := make([]access.Role, 0, len(u.Roles))
	for _, r := range u.Roles {
		roles = append(roles, access.ParseRole(string(r)))
	}
	roles = util.Exclude(roles, []access.Role{""})

	return util.Dedupe(roles)
}

// Permissions resolves the user's capability set from their roles.
func (u User) Permissions() access.CapabilitySet {
	return access.Resolve(u.RoleSet())
}

// Token is the bearer credential granted at login.
type Token struct {
	Value     string    `json:"value"`
	GrantedAt time.Time `json:"granted_at"`
	ExpiredAt time.Time `json:"expired_at"`
	Scope     string    `json:"scope"`
}

// Expired reports whether the token has expired as of now. A token with a
// zero expiry is treated as expired.
func (t Token) Expired(now time.Time) bool {
	return !t.ExpiredAt.After(now)
}

// Remaining returns the time left before expiry. Negative once expired.
func (t Token) Remaining(now time.Time) time.Duration {
	return t.ExpiredAt.Sub(now)
}

// Record is the session state persisted by a client and mirrored in memory.
//
// IsLoggedIn is a derived flag: it must agree with "user and token are both
// present and the token has not expired" at every observation point. Brief
// staleness is tolerated between lifecycle-monitor ticks, never longer than
// one poll interval.
type Record struct {
	User       *User  `json:"user"`
	Token      *Token `json:"token"`
	IsLoggedIn bool   `json:"isLoggedIn"`
}

// Empty returns the logged-out record.
func Empty() Record {
	return Record{}
}

// LoggedOut reports whether the record carries no session at all.
func (r Record) LoggedOut() bool {
	return !r.IsLoggedIn && r.User == nil && r.Token == nil
}

// Expired reports whether the record's token has expired. Fail-closed: a
// record without a token is expired.
func (r Record) Expired(now time.Time) bool {
	if r.Token == nil {
		return true
	}

	return r.Token.Expired(now)
}

// Equal reports whether two records carry the same session.
func (r Record) Equal(other Record) bool {
	if r.IsLoggedIn != other.IsLoggedIn {
		return false
	}
	if (r.User == nil) != (other.User == nil) || (r.Token == nil) != (other.Token == nil) {
		return false
	}
	if r.User != nil {
		if r.User.ID != other.User.ID || r.User.Username != other.User.Username ||
			r.User.Email != other.User.Email || r.User.Avatar != other.User.Avatar {
			return false
		}
		mine, theirs := r.User.RoleSet(), other.User.RoleSet()
		if len(mine) != len(theirs) {
			return false
		}
		for _, role := range mine {
			if !util.Contains(theirs, role) {
				return false
			}
		}
	}
	if r.Token != nil {
		if r.Token.Value != other.Token.Value || r.Token.Scope != other.Token.Scope ||
			!r.Token.GrantedAt.Equal(other.Token.GrantedAt) || !r.Token.ExpiredAt.Equal(other.Token.ExpiredAt) {
			return false
		}
	}

	return true
}
