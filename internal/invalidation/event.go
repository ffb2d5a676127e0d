// Package invalidation consumes catalog cache invalidation events from Kafka.
package invalidation

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Event asks consumers to drop a cached catalog listing. An empty Endpoint
// targets the consumer's own catalog.
type Event struct {
	Version  uint64    `json:"version"`
	Op       string    `json:"op"`
	Endpoint string    `json:"endpoint,omitempty"`
	TS       time.Time `json:"ts"`
}

func (e Event) Validate() error {
	if e.Version == 0 {
		return errors.New("version must be positive")
	}
	switch e.Op {
	case "purge", "update", "delete":
	default:
		return fmt.Errorf("op must be purge|update|delete, got %q", e.Op)
	}
	if ep := strings.TrimSpace(e.Endpoint); ep != "" {
		u, err := url.Parse(ep)
		if err != nil {
			return fmt.Errorf("endpoint: %w", err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("endpoint must be an absolute http(s) url")
		}
	}
	return nil
}

// dedupeKey groups events so versions only compare within one endpoint.
func (e Event) dedupeKey() string {
	if ep := strings.TrimSpace(e.Endpoint); ep != "" {
		return ep
	}
	return "self"
}
