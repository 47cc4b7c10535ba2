package main

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func runIndexCreate(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	targets, err := a.selectIndexes(args)
	if err != nil {
		return err
	}
	var errs []error
	for _, ix := range targets {
		if dropFirst {
			if err := ix.DropIndex(cmd.Context()); err != nil {
				errs = append(errs, err)
				continue
			}
		}
		out, err := ix.EnsureIndex(cmd.Context())
		if err != nil {
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", ix.Keyspace(), out)
	}
	return errors.Join(errs...)
}

func runIndexDrop(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	targets, err := a.selectIndexes(args)
	if err != nil {
		return err
	}
	var errs []error
	for _, ix := range targets {
		if err := ix.DropIndex(cmd.Context()); err != nil {
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: dropped\n", ix.Keyspace())
	}
	return errors.Join(errs...)
}

// selectIndexes returns the named keyspaces, or all of them sorted when
// none is named.
func (a *app) selectIndexes(keyspaces []string) ([]indexOps, error) {
	if len(keyspaces) == 0 {
		for k := range a.indexes {
			keyspaces = append(keyspaces, k)
		}
		sort.Strings(keyspaces)
	}
	out := make([]indexOps, 0, len(keyspaces))
	for _, k := range keyspaces {
		ix, ok := a.indexes[k]
		if !ok {
			return nil, fmt.Errorf("unknown keyspace %q", k)
		}
		out = append(out, ix)
	}
	return out, nil
}
