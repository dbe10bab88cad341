// Package config holds the CLI configuration types.
package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// Config stores all parameters gathered from CLI flags or interactive
// prompts before a room session is established.
type Config struct {
	RelayURL      string // WebSocket base URL of the signaling relay
	RoomID        string // room ("camp") to join
	UserID        string // local identity; generated when empty
	BroadcasterID string // room owner identity, from room metadata
	AutoListen    bool   // receiver: start listening when a broadcast starts
	Debug         bool
}

// Normalize validates the configuration and fills defaults. A missing
// UserID gets a generated UUID.
func (c *Config) Normalize() error {
	if c.RoomID == "" {
		return fmt.Errorf("missing room id")
	}
	if c.BroadcasterID == "" {
		return fmt.Errorf("missing broadcaster id")
	}
	if c.UserID == "" {
		c.UserID = uuid.NewString()
	}

	relayURL, err := NormalizeRelayURL(c.RelayURL)
	if err != nil {
		return err
	}
	c.RelayURL = relayURL
	return nil
}

// NormalizeRelayURL validates and normalizes a raw relay URL string,
// defaulting the scheme to wss for bare hosts.
func NormalizeRelayURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw != "" && !strings.Contains(raw, "://") {
		raw = "wss://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid relay URL: %q", raw)
	}

	var scheme string
	switch u.Scheme {
	case "ws", "wss":
		scheme = u.Scheme
	case "http":
		scheme = "ws"
	case "https":
		scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported relay URL scheme: %q", u.Scheme)
	}
	return fmt.Sprintf("%s://%s", scheme, u.Host), nil
}
