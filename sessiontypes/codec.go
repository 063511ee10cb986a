package sessiontypes

import (
	"encoding/json"

	"github.com/go-playground/errors/v5"
)

// persistedState is the storage layout. The record nests under "state" to
// match what every deployed client has already written.
type persistedState struct {
	State Record `json:"state"`
}

// Encode serializes a record into the persisted payload.
func Encode(r Record) (string, error) {
	raw, err := json.Marshal(persistedState{State: r})
	if err != nil {
		return "", errors.Wrap(err, "json.Marshal()")
	}

	return string(raw), nil
}

// Decode parses a persisted payload back into a record.
//
// A payload that parses but violates the record invariant (logged in without
// a user or token, or a token without a valid expiry) is rejected the same
// way corrupt JSON is; callers treat either as "no session".
func Decode(payload string) (Record, error) {
	var state persistedState
	if err := json.Unmarshal([]byte(payload), &state); err != nil {
		return Record{}, errors.Wrap(err, "json.Unmarshal()")
	}

	r := state.State
	if r.IsLoggedIn {
		if r.User == nil || r.Token == nil {
			return Record{}, errors.New("logged-in record missing user or token")
		}
		if r.Token.ExpiredAt.IsZero() {
			return Record{}, errors.New("logged-in record missing token expiry")
		}
	}

	return r, nil
}
