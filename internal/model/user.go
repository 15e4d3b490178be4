// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// UserID is an opaque user identifier. The backend sends it as either a JSON
// string or a JSON number; both decode to the same textual form.
type UserID string

// UnmarshalJSON accepts a string or a number.
func (id *UserID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = UserID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("user id: expected string or number, got %s", data)
	}
	*id = UserID(n.String())
	return nil
}

// Usage mirrors the quota counters reported by the backend. It is replaced
// wholesale on every observation; the client never does arithmetic on it.
type Usage struct {
	RequestsToday      int `json:"requests_today"`
	LimitPerDay        int `json:"limit_per_day"`
	RequestsLastMinute int `json:"requests_last_minute"`
	LimitPerMinute     int `json:"limit_per_minute"`
}

// String formats the counters the way the usage bar shows them.
func (u Usage) String() string {
	return fmt.Sprintf("Today: %d / %d  Last minute: %d / %d",
		u.RequestsToday, u.LimitPerDay, u.RequestsLastMinute, u.LimitPerMinute)
}

// User is the identity resolved for the current token. A new User replaces
// the previous one on every resolution.
type User struct {
	ID        UserID `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Usage     Usage  `json:"usage"`
}

// HasAvatar reports whether the backend supplied an avatar URL.
func (u User) HasAvatar() bool {
	return u.AvatarURL != ""
}
