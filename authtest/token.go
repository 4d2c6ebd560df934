package authtest

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects how access tokens are signed.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

// TokenConfig configures access-token issuance.
type TokenConfig struct {
	AccessTTL     time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
}

// AccessClaims is the payload of the access cookie. Generation lets the
// server invalidate every outstanding access token at once.
type AccessClaims struct {
	UID        string `json:"uid"`
	SID        string `json:"sid"`
	Role       string `json:"role"`
	Generation uint64 `json:"gen"`
	jwt.RegisteredClaims
}

type tokenIssuer struct {
	config TokenConfig
	now    func() time.Time
}

func newTokenIssuer(cfg TokenConfig) (*tokenIssuer, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) != ed25519.PrivateKeySize {
			return nil, errors.New("invalid ed25519 private key")
		}
		if len(cfg.PublicKey) == 0 {
			cfg.PublicKey = ed25519.PrivateKey(cfg.PrivateKey).Public().(ed25519.PublicKey)
		}
		if len(cfg.PublicKey) != ed25519.PublicKeySize {
			return nil, errors.New("invalid ed25519 public key")
		}
	default:
		return nil, errors.New("unsupported signing method")
	}
	return &tokenIssuer{config: cfg, now: time.Now}, nil
}

func (j *tokenIssuer) Issue(uid, sid, role string, generation uint64) (string, error) {
	now := j.now()
	claims := AccessClaims{
		UID:        uid,
		SID:        sid,
		Role:       role,
		Generation: generation,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(j.config.AccessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    j.config.Issuer,
		},
	}

	token := jwt.NewWithClaims(j.method(), claims)
	return token.SignedString(j.signKey())
}

func (j *tokenIssuer) Parse(tokenStr string) (*AccessClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{j.method().Alg()}),
		jwt.WithTimeFunc(j.now),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &AccessClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != j.method().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return j.verifyKey(), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

func (j *tokenIssuer) method() jwt.SigningMethod {
	if j.config.SigningMethod == MethodHS256 {
		return jwt.SigningMethodHS256
	}
	return jwt.SigningMethodEdDSA
}

func (j *tokenIssuer) signKey() interface{} {
	if j.config.SigningMethod == MethodHS256 {
		return j.config.PrivateKey
	}
	return ed25519.PrivateKey(j.config.PrivateKey)
}

func (j *tokenIssuer) verifyKey() interface{} {
	if j.config.SigningMethod == MethodHS256 {
		return j.config.PrivateKey
	}
	return ed25519.PublicKey(j.config.PublicKey)
}
