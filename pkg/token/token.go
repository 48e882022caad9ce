// Package token issues compact HMAC-signed tokens that carry a JSON payload
// and an expiry. Tokens look like <base64url(envelope)>.<base64url(sig)> and
// are safe to embed in URLs, e.g. in email confirmation links.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidToken     = errors.New("token: invalid format")
	ErrSignatureInvalid = errors.New("token: signature mismatch")
	ErrTokenExpired     = errors.New("token: expired")
	ErrEmptySecret      = errors.New("token: empty secret")
)

type envelope[T any] struct {
	Payload   T     `json:"p"`
	ExpiresAt int64 `json:"e,omitempty"`
}

// Generate signs payload. A zero ttl produces a token that never expires.
func Generate[T any](payload T, secret string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	env := envelope[T]{Payload: payload}
	if ttl > 0 {
		env.ExpiresAt = time.Now().Add(ttl).Unix()
	}
	data, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("token: encode payload: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data) + "." +
		base64.RawURLEncoding.EncodeToString(sign(data, secret)), nil
}

// Parse verifies the signature and expiry, then decodes the payload.
func Parse[T any](token, secret string) (T, error) {
	var zero T
	if secret == "" {
		return zero, ErrEmptySecret
	}
	payloadPart, sigPart, ok := strings.Cut(token, ".")
	if !ok || payloadPart == "" || sigPart == "" {
		return zero, ErrInvalidToken
	}
	data, err := base64.RawURLEncoding.DecodeString(payloadPart)
	if err != nil {
		return zero, ErrInvalidToken
	}
	sig, err := base64.RawURLEncoding.DecodeString(sigPart)
	if err != nil {
		return zero, ErrInvalidToken
	}
	if subtle.ConstantTimeCompare(sig, sign(data, secret)) != 1 {
		return zero, ErrSignatureInvalid
	}

	var env envelope[T]
	if err := json.Unmarshal(data, &env); err != nil {
		return zero, ErrInvalidToken
	}
	if env.ExpiresAt != 0 && time.Now().Unix() >= env.ExpiresAt {
		return zero, ErrTokenExpired
	}
	return env.Payload, nil
}

func sign(data []byte, secret string) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(data)
	return h.Sum(nil)
}
