package auth

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func TestFromToken(t *testing.T) {
	tests := []struct {
		name    string
		claims  jwt.MapClaims
		wantID  int64
		wantErr bool
	}{
		{"user_id number", jwt.MapClaims{"user_id": 1, "username": "rex"}, 1, false},
		{"id number", jwt.MapClaims{"id": 42}, 42, false},
		{"sub string", jwt.MapClaims{"sub": "7"}, 7, false},
		{"non numeric sub", jwt.MapClaims{"sub": "abc"}, 0, true},
		{"no id", jwt.MapClaims{"username": "rex"}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := signed(t, tt.claims)
			id, err := FromToken(tok)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FromToken() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if id.UserID != tt.wantID {
				t.Errorf("UserID = %d, want %d", id.UserID, tt.wantID)
			}
			if id.Token != tok {
				t.Error("Token not preserved")
			}
		})
	}
}

func TestFromTokenProfileClaims(t *testing.T) {
	tok := signed(t, jwt.MapClaims{"user_id": 3, "username": "milo", "name": "Milo", "profilePic": "milo.png"})
	id, err := FromToken(tok)
	if err != nil {
		t.Fatal(err)
	}
	if id.Username != "milo" || id.Name != "Milo" || id.Avatar != "milo.png" {
		t.Errorf("identity = %+v", id)
	}
	if id.DisplayName() != "Milo" {
		t.Errorf("DisplayName() = %q, want Milo", id.DisplayName())
	}
}

func TestFromTokenGarbage(t *testing.T) {
	if _, err := FromToken("not-a-jwt"); err == nil {
		t.Error("FromToken(garbage) should fail")
	}
}

func TestDisplayNameFallback(t *testing.T) {
	id := Identity{Username: "rex"}
	if id.DisplayName() != "rex" {
		t.Errorf("DisplayName() = %q, want rex", id.DisplayName())
	}
}
