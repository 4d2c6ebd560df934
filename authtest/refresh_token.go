package authtest

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"

	"github.com/google/uuid"
)

const (
	refreshSecretSize   = 32
	refreshTokenRawSize = 16 + refreshSecretSize
)

var errRefreshTokenFormat = errors.New("invalid refresh token")

func newRefreshSecret() ([refreshSecretSize]byte, error) {
	var secret [refreshSecretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

func hashRefreshSecret(secret [refreshSecretSize]byte) [32]byte {
	return sha256.Sum256(secret[:])
}

// encodeRefreshToken packs the session id and secret into the opaque cookie
// value: base64url(session id || secret).
func encodeRefreshToken(sessionID uuid.UUID, secret [refreshSecretSize]byte) string {
	var raw [refreshTokenRawSize]byte
	copy(raw[:16], sessionID[:])
	copy(raw[16:], secret[:])
	return base64.RawURLEncoding.EncodeToString(raw[:])
}

func decodeRefreshToken(token string) (uuid.UUID, [refreshSecretSize]byte, error) {
	var (
		sid    uuid.UUID
		secret [refreshSecretSize]byte
	)
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) != refreshTokenRawSize {
		return sid, secret, errRefreshTokenFormat
	}
	copy(sid[:], raw[:16])
	copy(secret[:], raw[16:])
	return sid, secret, nil
}
