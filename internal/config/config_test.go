package config

import (
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default("portal-1")
	if cfg.Portal.ID != "portal-1" {
		t.Fatalf("portal id = %q", cfg.Portal.ID)
	}
	if cfg.Routing.CacheTTLSeconds != 300 {
		t.Fatalf("cache ttl = %d, want 300", cfg.Routing.CacheTTLSeconds)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if got := cfg.Subject("approve", "fallback"); got != "Assignment approved" {
		t.Fatalf("subject = %q", got)
	}
	if got := cfg.Subject("unknown-action", "fallback"); got != "fallback" {
		t.Fatalf("fallback subject = %q", got)
	}
}

func TestFromYAMLValidation(t *testing.T) {
	_, err := FromYAML([]byte("portal:\n  id: \"\"\n"))
	if err == nil || !strings.Contains(err.Error(), "portal.id") {
		t.Fatalf("err = %v, want portal.id required", err)
	}

	cfg, err := FromYAML([]byte(`portal:
  id: portal-1
notify:
  webhooks:
    - url: https://hooks.example.com/teamline
      roles: [supervisor]
admins:
  - admin
`))
	if err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	if !cfg.IsAdmin("admin") || cfg.IsAdmin("other") {
		t.Fatalf("admin check broken")
	}
	if len(cfg.Notify.Webhooks) != 1 || cfg.Notify.Webhooks[0].Roles[0] != "supervisor" {
		t.Fatalf("webhooks = %+v", cfg.Notify.Webhooks)
	}

	_, err = FromYAML([]byte(`portal:
  id: portal-1
notify:
  webhooks:
    - url: ""
`))
	if err == nil {
		t.Fatalf("webhook without url accepted")
	}
}
