package prof

import (
	"context"
	"strings"
	"testing"

	"github.com/keithlinneman/linnemanlabs-webapp/internal/log"
)

func TestStart_Disabled(t *testing.T) {
	var calls int
	stop, err := Start(context.Background(), Options{
		Enabled:       false,
		ServerAddress: "not validated when disabled",
		OnActive:      func(bool) { calls++ },
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	stop()
	stop()
	if calls != 0 {
		t.Fatalf("OnActive called %d times while disabled", calls)
	}
}

func TestStart_InvalidAddress(t *testing.T) {
	ctx := log.WithContext(context.Background(), log.Nop())
	for _, addr := range []string{"", "pyroscope:4040", "://bad"} {
		var active bool
		stop, err := Start(ctx, Options{
			Enabled:       true,
			AppName:       "webapp",
			ServerAddress: addr,
			OnActive:      func(a bool) { active = a },
		})
		if err == nil {
			t.Fatalf("address %q: expected error", addr)
		}
		if !strings.Contains(err.Error(), "invalid server address") {
			t.Fatalf("address %q: error = %q", addr, err.Error())
		}
		if stop == nil {
			t.Fatalf("address %q: stop must be non-nil on error", addr)
		}
		stop()
		if active {
			t.Fatalf("address %q: OnActive should not report active", addr)
		}
	}
}

func TestStart_UnreachableServer(t *testing.T) {
	var states []bool
	stop, err := Start(context.Background(), Options{
		Enabled:       true,
		AppName:       "webapp",
		ServerAddress: "http://127.0.0.1:1",
		OnActive:      func(a bool) { states = append(states, a) },
	})
	if stop == nil {
		t.Fatal("stop must be non-nil")
	}
	stop()
	stop()
	// the agent uploads lazily, so start normally succeeds
	if err == nil && (len(states) != 2 || !states[0] || states[1]) {
		t.Fatalf("OnActive states = %v, want [true false]", states)
	}
}

func TestValidateAddress(t *testing.T) {
	ok := []string{"http://pyroscope:4040", "https://profiles.example.com"}
	for _, a := range ok {
		if err := validateAddress(a); err != nil {
			t.Fatalf("validateAddress(%q): %v", a, err)
		}
	}
}

func TestConfig(t *testing.T) {
	tags := map[string]string{"component": "server"}
	c := config(Options{
		AppName:       "webapp",
		ServerAddress: "http://pyro:4040",
		AuthToken:     "tok",
		TenantID:      "tenant",
		Tags:          tags,
	})
	if c.ApplicationName != "webapp" || c.TenantID != "tenant" || c.AuthToken != "tok" {
		t.Fatalf("config = %+v", c)
	}
	if c.Tags["app"] != "webapp" || c.Tags["component"] != "server" {
		t.Fatalf("tags = %v", c.Tags)
	}
	if _, ok := tags["app"]; ok {
		t.Fatal("caller's tag map must not be modified")
	}
	if len(c.ProfileTypes) != len(DefaultProfileTypes) {
		t.Fatalf("profile types = %d", len(c.ProfileTypes))
	}

	c = config(Options{AppName: "webapp", Tags: map[string]string{"app": "override"}})
	if c.Tags["app"] != "override" {
		t.Fatal("explicit app tag should win")
	}
}
