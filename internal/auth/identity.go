// Package auth holds the authenticated identity the chat session runs as.
package auth

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoIdentity is returned when no credential is available for a profile.
var ErrNoIdentity = errors.New("no stored credential; run pawchatctl login")

// Identity is the logged-in user. It is resolved once at daemon start and
// passed to every component that needs "self".
type Identity struct {
	UserID   int64
	Username string
	Name     string
	Avatar   string
	Token    string
}

// DisplayName prefers the display name over the username.
func (i Identity) DisplayName() string {
	if i.Name != "" {
		return i.Name
	}
	return i.Username
}

// FromToken reads identity claims out of a bearer JWT. The signature is not
// verified; the backend does that on every call.
func FromToken(token string) (Identity, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Identity{}, fmt.Errorf("parse token: %w", err)
	}

	id := Identity{Token: token}
	uid, err := userID(claims)
	if err != nil {
		return Identity{}, err
	}
	id.UserID = uid
	if v, ok := claims["username"].(string); ok {
		id.Username = v
	}
	if v, ok := claims["name"].(string); ok {
		id.Name = v
	}
	if v, ok := claims["profilePic"].(string); ok {
		id.Avatar = v
	}
	return id, nil
}

// userID accepts user_id, id or sub, as a JSON number or a decimal string.
func userID(claims jwt.MapClaims) (int64, error) {
	for _, key := range []string{"user_id", "id", "sub"} {
		switch v := claims[key].(type) {
		case float64:
			return int64(v), nil
		case string:
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				return n, nil
			}
		}
	}
	return 0, errors.New("token carries no numeric user id claim")
}
