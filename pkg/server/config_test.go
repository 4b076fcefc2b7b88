package server

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestConfigWithDefaults(t *testing.T) {
	var nilConfig *Config
	c := nilConfig.withDefaults()
	if c.Path != "/ws" || c.HeartbeatInterval != 30*time.Second || c.HeartbeatTimeout != 30*time.Second {
		t.Errorf("defaults = path %q interval %v timeout %v", c.Path, c.HeartbeatInterval, c.HeartbeatTimeout)
	}
	if c.Metrics == nil || c.Clock == nil || c.Logger == nil {
		t.Error("expected metrics registry, clock and logger to be filled in")
	}

	custom := &Config{Path: "/relay", SendQueue: 4}
	c = custom.withDefaults()
	if c.Path != "/relay" || c.SendQueue != 4 {
		t.Errorf("custom fields overwritten: %+v", c)
	}
	if c.MaxMessageSize != 64*1024 {
		t.Errorf("MaxMessageSize = %d", c.MaxMessageSize)
	}
	if custom.Metrics != nil {
		t.Error("withDefaults mutated the caller's config")
	}
}

func TestSameOriginCheck(t *testing.T) {
	tests := []struct {
		name   string
		origin string
		want   bool
	}{
		{"no origin", "", true},
		{"same host", "http://example.com", true},
		{"other host", "http://evil.test", false},
		{"bad url", "://", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "http://example.com/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := SameOriginCheck(r); got != tt.want {
				t.Errorf("SameOriginCheck(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}
