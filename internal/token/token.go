// Package token mints media-room join credentials. The credential is a
// LiveKit-shaped JWT: HS256-signed, issuer set to the API key, with the room
// grant under a "video" claim. The rest of the system treats it as an opaque
// string.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const DefaultTTL = 6 * time.Hour

var ErrNotConfigured = errors.New("media room credentials not configured")

// videoGrant mirrors the LiveKit video grant claim.
type videoGrant struct {
	Room           string `json:"room"`
	RoomJoin       bool   `json:"roomJoin"`
	CanPublish     bool   `json:"canPublish"`
	CanSubscribe   bool   `json:"canSubscribe"`
	CanPublishData bool   `json:"canPublishData"`
}

type roomClaims struct {
	jwt.RegisteredClaims
	Name  string     `json:"name,omitempty"`
	Video videoGrant `json:"video"`
}

// Minter signs room join tokens with a shared API key/secret pair.
type Minter struct {
	apiKey    string
	apiSecret string
	ttl       time.Duration
	now       func() time.Time
}

func NewMinter(apiKey, apiSecret string, ttl time.Duration) *Minter {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Minter{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		ttl:       ttl,
		now:       time.Now,
	}
}

// Configured reports whether a key/secret pair is present.
func (m *Minter) Configured() bool {
	return m.apiKey != "" && m.apiSecret != ""
}

// RoomToken mints a join credential granting identity full publish and
// subscribe access to roomName.
func (m *Minter) RoomToken(roomName, identity string) (string, error) {
	if m.apiKey == "" || m.apiSecret == "" {
		return "", ErrNotConfigured
	}

	now := m.now()
	claims := roomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.apiKey,
			Subject:   identity,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
		Name: identity,
		Video: videoGrant{
			Room:           roomName,
			RoomJoin:       true,
			CanPublish:     true,
			CanSubscribe:   true,
			CanPublishData: true,
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(m.apiSecret))
}
