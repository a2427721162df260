package session

import (
	"strings"
	"testing"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func TestSignID_RoundTrip(t *testing.T) {
	v := SignID(testKey, "abc")
	id, ok := VerifyCookie(testKey, v)
	if !ok || id != "abc" {
		t.Fatalf("VerifyCookie(%q) = %q, %v", v, id, ok)
	}
}

func TestVerifyCookie_WrongKey(t *testing.T) {
	v := SignID(testKey, "abc")
	if _, ok := VerifyCookie([]byte("another-key-another-key-another!!"), v); ok {
		t.Fatal("signature from a different key accepted")
	}
}

func TestVerifyCookie_TamperedID(t *testing.T) {
	v := SignID(testKey, "abc")
	tampered := "abd" + v[strings.IndexByte(v, '.'):]
	if _, ok := VerifyCookie(testKey, tampered); ok {
		t.Fatal("tampered id accepted")
	}
}

func TestVerifyCookie_Malformed(t *testing.T) {
	for _, v := range []string{"", "abc", ".sig", "abc.", "abc.!!!notbase64"} {
		if _, ok := VerifyCookie(testKey, v); ok {
			t.Errorf("VerifyCookie(%q) accepted", v)
		}
	}
}

func TestVerifyCookie_IDWithDots(t *testing.T) {
	v := SignID(testKey, "a.b.c")
	id, ok := VerifyCookie(testKey, v)
	if !ok || id != "a.b.c" {
		t.Fatalf("VerifyCookie = %q, %v", id, ok)
	}
}
