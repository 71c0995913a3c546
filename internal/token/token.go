// Package token signs render callbacks. A token binds the ad and hook clip a
// render was submitted for, so a callback cannot complete another ad's render.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	ErrInvalid  = errors.New("invalid token")
	ErrExpired  = errors.New("token expired")
	ErrMismatch = errors.New("token does not match render")
)

type payload struct {
	AdID string `json:"a"`
	Hook string `json:"h"`
	TS   int64  `json:"t"`
}

// Claims are the values carried by a verified token.
type Claims struct {
	FBAdID   string
	HookName string
	IssuedAt time.Time
}

// Generate creates a signed token for the render of hookName over fbAdID.
func Generate(fbAdID, hookName string, now time.Time, secret []byte) (string, error) {
	data, err := json.Marshal(payload{AdID: fbAdID, Hook: hookName, TS: now.Unix()})
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(data)
	sig := mac.Sum(nil)

	enc := base64.RawURLEncoding
	return enc.EncodeToString(data) + "." + enc.EncodeToString(sig), nil
}

// Verify checks the token integrity and age. A zero ttl disables the age check.
func Verify(token string, secret []byte, ttl time.Duration, now time.Time) (Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return Claims{}, ErrInvalid
	}
	enc := base64.RawURLEncoding
	data, err := enc.DecodeString(parts[0])
	if err != nil {
		return Claims{}, ErrInvalid
	}
	sig, err := enc.DecodeString(parts[1])
	if err != nil {
		return Claims{}, ErrInvalid
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(data)
	if !hmac.Equal(mac.Sum(nil), sig) {
		return Claims{}, ErrInvalid
	}

	var pl payload
	if err := json.Unmarshal(data, &pl); err != nil {
		return Claims{}, ErrInvalid
	}
	issued := time.Unix(pl.TS, 0)
	if ttl > 0 && now.Sub(issued) > ttl {
		return Claims{}, ErrExpired
	}
	return Claims{FBAdID: pl.AdID, HookName: pl.Hook, IssuedAt: issued}, nil
}

// VerifyRender verifies token and checks it was issued for fbAdID and hookName.
func VerifyRender(token, fbAdID, hookName string, secret []byte, ttl time.Duration, now time.Time) error {
	c, err := Verify(token, secret, ttl, now)
	if err != nil {
		return err
	}
	if c.FBAdID != fbAdID || c.HookName != hookName {
		return ErrMismatch
	}
	return nil
}
