package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ulvio/heimdall/internal/component"
)

type statusStore interface {
	CurrentStatus(ctx context.Context) ([]component.Status, error)
}

func executeStatus(cmd *cobra.Command, db statusStore) error {
	out := cmd.OutOrStdout()
	statuses, err := db.CurrentStatus(context.Background())
	if err != nil {
		return fmt.Errorf("querying status: %w", err)
	}

	if len(statuses) == 0 {
		fmt.Fprintln(out, "No status history. Run 'heimdall serve' first.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "COMPONENT\tSTATE\tSINCE\tLAST CHECKED\tDETAIL")
	for _, st := range statuses {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			st.Name,
			st.State,
			st.Since.Local().Format("2006-01-02 15:04:05"),
			st.LastChecked.Local().Format("2006-01-02 15:04:05"),
			st.Detail,
		)
	}
	w.Flush()
	return nil
}
