package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/noseyparker-go/noseyparker/pkg/datastore"
)

var (
	dsExportOutput string
	dsImportInput  string
)

var datastoreCmd = &cobra.Command{
	Use:   "datastore",
	Short: "Manage datastore archives",
}

var datastoreExportCmd = &cobra.Command{
	Use:   "export <datastore>",
	Short: "Export a datastore directory as a gzipped tar archive",
	Args:  cobra.ExactArgs(1),
	RunE:  runDatastoreExport,
}

var datastoreImportCmd = &cobra.Command{
	Use:   "import <datastore>",
	Short: "Import a gzipped tar archive into a new datastore directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runDatastoreImport,
}

func init() {
	datastoreExportCmd.Flags().StringVar(&dsExportOutput, "output", "", "Output archive path (defaults to stdout)")
	datastoreImportCmd.Flags().StringVar(&dsImportInput, "input", "", "Input archive path (defaults to stdin)")

	datastoreCmd.AddCommand(datastoreExportCmd)
	datastoreCmd.AddCommand(datastoreImportCmd)
	rootCmd.AddCommand(datastoreCmd)
}

func runDatastoreExport(cmd *cobra.Command, args []string) error {
	ds, err := datastore.Open(args[0], datastore.Options{})
	if err != nil {
		return fmt.Errorf("opening datastore: %w", err)
	}
	defer ds.Close()

	out := cmd.OutOrStdout()
	if dsExportOutput != "" {
		f, err := os.Create(dsExportOutput)
		if err != nil {
			return fmt.Errorf("creating output archive: %w", err)
		}
		defer f.Close()
		out = f
	}

	if err := ds.Export(out); err != nil {
		return fmt.Errorf("exporting datastore: %w", err)
	}
	return nil
}

func runDatastoreImport(cmd *cobra.Command, args []string) error {
	in := cmd.InOrStdin()
	if dsImportInput != "" {
		f, err := os.Open(dsImportInput)
		if err != nil {
			return fmt.Errorf("opening input archive: %w", err)
		}
		defer f.Close()
		in = f
	}

	ds, err := datastore.Import(args[0], in, datastore.Options{})
	if err != nil {
		return fmt.Errorf("importing datastore: %w", err)
	}
	return ds.Close()
}
