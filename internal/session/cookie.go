package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// SignID returns the cookie value for id: "<id>.<base64url(HMAC-SHA256(key, id))>".
func SignID(key []byte, id string) string {
	return id + "." + base64.RawURLEncoding.EncodeToString(mac(key, id))
}

// VerifyCookie returns the session id carried by a signed cookie value.
// ok is false for malformed values and bad signatures.
func VerifyCookie(key []byte, value string) (id string, ok bool) {
	i := strings.LastIndexByte(value, '.')
	if i <= 0 || i == len(value)-1 {
		return "", false
	}
	id, sig := value[:i], value[i+1:]
	got, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return "", false
	}
	if !hmac.Equal(got, mac(key, id)) {
		return "", false
	}
	return id, true
}

func mac(key []byte, id string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte("session:"))
	h.Write([]byte(id))
	return h.Sum(nil)
}
