package config

import (
	"strings"
	"testing"
)

func TestValidateAddress(t *testing.T) {
	valid := []string{
		"127.0.0.1:2301",
		"game.example.com:27015",
		"[::1]:2301",
	}
	for _, addr := range valid {
		if err := ValidateAddress(addr); err != nil {
			t.Errorf("ValidateAddress(%q) = %v, expected nil", addr, err)
		}
	}

	invalid := []string{
		"",
		"127.0.0.1",
		":2301",
		"host:0",
		"host:65536",
		"host:port",
	}
	for _, addr := range invalid {
		if err := ValidateAddress(addr); err == nil {
			t.Errorf("ValidateAddress(%q) = nil, expected error", addr)
		}
	}
}

func TestClientValidate(t *testing.T) {
	base := func() *Client {
		return &Client{
			Server:   "127.0.0.1:2301",
			Password: "secret",
		}
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	t.Run("missing server", func(t *testing.T) {
		c := base()
		c.Server = ""
		if err := c.Validate(); err == nil {
			t.Error("expected error for missing server")
		}
	})

	t.Run("empty password", func(t *testing.T) {
		c := base()
		c.Password = ""
		if err := c.Validate(); err == nil {
			t.Error("expected error for empty password")
		}
	})

	t.Run("password too long", func(t *testing.T) {
		c := base()
		c.Password = strings.Repeat("a", 33)
		if err := c.Validate(); err == nil {
			t.Error("expected error for 33-char password")
		}
	})

	t.Run("password at limit", func(t *testing.T) {
		c := base()
		c.Password = strings.Repeat("a", 32)
		if err := c.Validate(); err != nil {
			t.Errorf("32-char password should pass, got %v", err)
		}
	})

	t.Run("unknown transport", func(t *testing.T) {
		c := base()
		c.Transport = "udp"
		if err := c.Validate(); err == nil {
			t.Error("expected error for unknown transport")
		}
	})

	t.Run("multi-char prefix", func(t *testing.T) {
		c := base()
		c.Security.CommandPrefix = "//"
		if err := c.Validate(); err == nil {
			t.Error("expected error for multi-character prefix")
		}
	})
}
