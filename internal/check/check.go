// Package check implements one health-check strategy per component kind.
package check

import (
	"context"
	"fmt"
	"time"

	"github.com/ulvio/heimdall/internal/component"
)

// Checker performs a single health check. Implementations honor the
// context deadline as a hard bound and never panic; internal errors are
// absorbed into a down outcome with Detail set.
type Checker interface {
	Check(ctx context.Context) Outcome
}

// New returns the Checker for the given component definition. The kind
// is dispatched exactly once, here; the hot path never switches on it
// again.
func New(def component.Definition, timeout time.Duration) (Checker, error) {
	switch def.Kind {
	case component.KindWebServer:
		return newWebChecker(def, timeout), nil
	case component.KindNodeExporter:
		return newExporterChecker(def, timeout), nil
	case component.KindHost:
		return newHostChecker(def, timeout), nil
	case component.KindTCPServer:
		return newTCPChecker(def, timeout), nil
	default:
		return nil, fmt.Errorf("unknown component kind %q", def.Kind)
	}
}
