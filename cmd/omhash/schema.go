package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/omhash"
	"github.com/kailas-cloud/omhash/internal/transport/admin"
)

func runSchema(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	var selected []*omhash.Schema
	for _, s := range a.client.Schemas() {
		if len(args) == 0 || s.Keyspace() == args[0] {
			selected = append(selected, s)
		}
	}
	if len(args) == 1 && len(selected) == 0 {
		return fmt.Errorf("unknown keyspace %q", args[0])
	}

	if ftCreate {
		for _, s := range selected {
			fmt.Fprintln(cmd.OutOrStdout(), s.Definition().String())
		}
		return nil
	}

	views := make([]admin.SchemaView, len(selected))
	for i, s := range selected {
		views[i] = admin.NewSchemaView(s)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if len(views) == 1 {
		return enc.Encode(views[0])
	}
	return enc.Encode(views)
}
