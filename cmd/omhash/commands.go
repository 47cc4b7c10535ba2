package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/omhash/internal/version"
)

// --- Global Command Variables ---
var (
	envName    string
	configPath string
	dropFirst  bool
	ftCreate   bool

	rootCmd = &cobra.Command{
		Use:           "omhash",
		Short:         "Manage omhash schemas and search indexes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the admin HTTP server",
		Args:  cobra.NoArgs,
		RunE:  runServe, // Defined in serve.go
	}

	schemaCmd = &cobra.Command{
		Use:   "schema [keyspace]",
		Short: "Print the inferred schemas as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSchema, // Defined in schema.go
	}

	indexCmd = &cobra.Command{
		Use:   "index",
		Short: "Create or drop search indexes",
	}
	indexCreateCmd = &cobra.Command{
		Use:   "create [keyspace...]",
		Short: "Create indexes, all of them when no keyspace is given",
		RunE:  runIndexCreate, // Defined in index.go
	}
	indexDropCmd = &cobra.Command{
		Use:   "drop keyspace...",
		Short: "Drop indexes. Records are kept",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runIndexDrop, // Defined in index.go
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "omhash "+version.String())
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&envName, "env", "", "environment name, selects config/<env>.yaml (default $ENV or local)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file, overrides --env lookup")

	schemaCmd.Flags().BoolVar(&ftCreate, "ftcreate", false, "print FT.CREATE commands instead of JSON")
	indexCreateCmd.Flags().BoolVar(&dropFirst, "recreate", false, "drop existing indexes before creating")

	indexCmd.AddCommand(indexCreateCmd, indexDropCmd)
	rootCmd.AddCommand(serveCmd, schemaCmd, indexCmd, versionCmd)
}
