package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// signID returns "<id>.<mac>"
func signID(secret []byte, id string) string {
	return id + "." + mac(secret, id)
}

// verifyCookie returns the session id of a signed cookie value
func verifyCookie(secret []byte, value string) (string, error) {
	id, sig, ok := strings.Cut(value, ".")
	if !ok || id == "" || sig == "" {
		return "", ErrInvalidCookie
	}
	if !hmac.Equal([]byte(sig), []byte(mac(secret, id))) {
		return "", ErrInvalidCookie
	}
	return id, nil
}

func mac(secret []byte, id string) string {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(id))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
