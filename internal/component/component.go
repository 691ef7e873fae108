// Package component holds the shared model: component definitions as
// loaded from configuration, and the status/transition records the
// engine maintains for them.
package component

import (
	"fmt"
	"time"
)

// Kind identifies the class of a monitored component. The set is closed;
// checkers are selected by Kind once at load time.
type Kind string

const (
	KindWebServer    Kind = "web_server"
	KindHost         Kind = "host"
	KindNodeExporter Kind = "node_exporter"
	KindTCPServer    Kind = "tcp_server"
)

// Kinds lists every supported component kind.
var Kinds = []Kind{KindWebServer, KindHost, KindNodeExporter, KindTCPServer}

// Valid reports whether k is a supported kind.
func (k Kind) Valid() bool {
	switch k {
	case KindWebServer, KindHost, KindNodeExporter, KindTCPServer:
		return true
	}
	return false
}

// Definition describes a single monitored component. Definitions are
// immutable once admitted to the engine; Name is the stable key for all
// status and history lookups.
type Definition struct {
	Name        string `yaml:"name" json:"name"`
	Kind        Kind   `yaml:"kind" json:"kind"`
	DisplayName string `yaml:"display_name" json:"display_name"`
	Group       string `yaml:"group" json:"group,omitempty"`

	// web_server / node_exporter
	URL                string `yaml:"url" json:"url,omitempty"`
	IgnoreUnauthorized bool   `yaml:"ignore_unauthorized" json:"ignore_unauthorized,omitempty"`

	// host / tcp_server
	Host string `yaml:"host" json:"host,omitempty"`
	Port int    `yaml:"port" json:"port,omitempty"`
}

// Validate checks the kind-specific required fields. A definition that
// fails validation is rejected, never silently defaulted.
func (d Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("component: name is required")
	}
	if !d.Kind.Valid() {
		return fmt.Errorf("component %q: unsupported kind %q", d.Name, d.Kind)
	}
	switch d.Kind {
	case KindWebServer, KindNodeExporter:
		if d.URL == "" {
			return fmt.Errorf("component %q: url is required for kind %q", d.Name, d.Kind)
		}
	case KindHost:
		if d.Host == "" {
			return fmt.Errorf("component %q: host is required for kind %q", d.Name, d.Kind)
		}
	case KindTCPServer:
		if d.Host == "" {
			return fmt.Errorf("component %q: host is required for kind %q", d.Name, d.Kind)
		}
		if d.Port <= 0 || d.Port > 65535 {
			return fmt.Errorf("component %q: port %d is out of range", d.Name, d.Port)
		}
	}
	return nil
}

// State is the recorded health state of a component.
type State string

const (
	StateUnknown State = "unknown"
	StateUp      State = "up"
	StateDown    State = "down"
)

// Status is the current standing of one component. It changes state only
// via a recorded Transition; Since always marks the latest transition,
// LastChecked the latest check of any result.
type Status struct {
	Name        string        `json:"name"`
	State       State         `json:"state"`
	Since       time.Time     `json:"since"`
	LastChecked time.Time     `json:"last_checked"`
	LastLatency time.Duration `json:"last_latency_ms"`
	Detail      string        `json:"detail,omitempty"`
}

// Healthy reports whether the component is in the up state.
func (s Status) Healthy() bool {
	return s.State == StateUp
}

// Transition is an append-only history record of a state change.
type Transition struct {
	EventID string    `json:"event_id"`
	Name    string    `json:"name"`
	From    State     `json:"from_state"`
	To      State     `json:"to_state"`
	At      time.Time `json:"at"`
	Detail  string    `json:"detail,omitempty"`
}

func (t Transition) String() string {
	return fmt.Sprintf("%s: %s -> %s at %s", t.Name, t.From, t.To, t.At.Format(time.RFC3339))
}
