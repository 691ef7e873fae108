package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/ulvio/heimdall/internal/check"
	"github.com/ulvio/heimdall/internal/component"
	"github.com/ulvio/heimdall/internal/config"
)

// runChecks polls every admitted component once, concurrently, and
// prints a table of the results. Returns an error when any component
// is unhealthy so scripts can use the exit code.
func runChecks(out io.Writer, comps *config.Components, timeout time.Duration) error {
	type row struct {
		def component.Definition
		out check.Outcome
	}

	results := make([]row, len(comps.Definitions))
	var wg sync.WaitGroup

	for i, def := range comps.Definitions {
		wg.Add(1)
		go func(i int, def component.Definition) {
			defer wg.Done()
			c, err := check.New(def, timeout)
			if err != nil {
				results[i] = row{def: def, out: check.Outcome{
					Name:       def.Name,
					Healthy:    false,
					ObservedAt: time.Now(),
					Detail:     fmt.Sprintf("creating checker: %v", err),
				}}
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			results[i] = row{def: def, out: c.Check(ctx)}
		}(i, def)
	}
	wg.Wait()

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "COMPONENT\tKIND\tHEALTHY\tLATENCY\tDETAIL")
	allHealthy := true
	for _, r := range results {
		latency := "n/a"
		if r.out.Latency > 0 {
			latency = r.out.Latency.Round(time.Millisecond).String()
		}
		healthy := "no"
		if r.out.Healthy {
			healthy = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.def.Name,
			r.def.Kind,
			healthy,
			latency,
			r.out.Detail,
		)
		if !r.out.Healthy {
			allHealthy = false
		}
	}
	w.Flush()

	for _, rej := range comps.Rejected {
		fmt.Fprintf(out, "skipped %s: %v\n", rej.Name, rej.Reason)
	}

	if !allHealthy {
		return fmt.Errorf("one or more components are down")
	}
	return nil
}
