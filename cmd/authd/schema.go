// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bagbot Contributors

package main

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/bagbot/authd/internal/httpapi"
)

// NewSchemaCmd creates the schema subcommand.
func NewSchemaCmd() *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "schema [NAME...]",
		Short: "Print the JSON Schemas of the API request bodies",
		Long: `Print the JSON Schema of each request body the HTTP API validates.
With --out, write one <name>.schema.json file per schema instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			names := args
			if len(names) == 0 {
				names = httpapi.SchemaNames()
			}
			if outDir != "" {
				if err := os.MkdirAll(outDir, 0o755); err != nil {
					return oops.Code("SCHEMA_WRITE_FAILED").With("dir", outDir).Wrap(err)
				}
			}

			for _, name := range names {
				data, err := httpapi.GenerateSchema(name)
				if err != nil {
					return err
				}
				if outDir == "" {
					cmd.Println(string(data))
					continue
				}
				path := filepath.Join(outDir, name+".schema.json")
				if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil { //nolint:gosec // schemas are public
					return oops.Code("SCHEMA_WRITE_FAILED").With("path", path).Wrap(err)
				}
				cmd.Printf("Wrote %s\n", path)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&outDir, "out", "", "directory to write schema files into")
	return cmd
}
