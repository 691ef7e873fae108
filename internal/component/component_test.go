package component_test

import (
	"strings"
	"testing"

	"github.com/ulvio/heimdall/internal/component"
)

func TestDefinitionValidate(t *testing.T) {
	tests := []struct {
		name    string
		def     component.Definition
		wantErr string
	}{
		{
			name: "valid web_server",
			def:  component.Definition{Name: "web1", Kind: component.KindWebServer, URL: "https://example.com/health"},
		},
		{
			name: "valid node_exporter",
			def:  component.Definition{Name: "metrics1", Kind: component.KindNodeExporter, URL: "http://10.0.0.2:9100/metrics"},
		},
		{
			name: "valid host",
			def:  component.Definition{Name: "gw", Kind: component.KindHost, Host: "10.0.0.1"},
		},
		{
			name: "valid tcp_server",
			def:  component.Definition{Name: "db", Kind: component.KindTCPServer, Host: "10.0.0.3", Port: 5432},
		},
		{
			name:    "missing name",
			def:     component.Definition{Kind: component.KindHost, Host: "10.0.0.1"},
			wantErr: "name is required",
		},
		{
			name:    "unsupported kind",
			def:     component.Definition{Name: "x", Kind: "proxy"},
			wantErr: "unsupported kind",
		},
		{
			name:    "web_server without url",
			def:     component.Definition{Name: "web1", Kind: component.KindWebServer},
			wantErr: "url is required",
		},
		{
			name:    "host without host",
			def:     component.Definition{Name: "gw", Kind: component.KindHost},
			wantErr: "host is required",
		},
		{
			name:    "tcp_server without port",
			def:     component.Definition{Name: "db", Kind: component.KindTCPServer, Host: "h"},
			wantErr: "out of range",
		},
		{
			name:    "tcp_server with bad port",
			def:     component.Definition{Name: "db", Kind: component.KindTCPServer, Host: "h", Port: 70000},
			wantErr: "out of range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.def.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestStatusHealthy(t *testing.T) {
	if (component.Status{State: component.StateUnknown}).Healthy() {
		t.Error("unknown must not be healthy")
	}
	if (component.Status{State: component.StateDown}).Healthy() {
		t.Error("down must not be healthy")
	}
	if !(component.Status{State: component.StateUp}).Healthy() {
		t.Error("up must be healthy")
	}
}
