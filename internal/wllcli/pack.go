package wllcli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/worldline-vcs/wll/internal/packfile"
)

var packWorkers int

var packCmd = &cobra.Command{
	Use:   "pack <output.wllp>",
	Short: "Export the current repository's full object set as a WLLP packfile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRepo()
		if err != nil {
			return err
		}
		defer r.Close()

		ids, err := r.store.All()
		if err != nil {
			return fmt.Errorf("pack: enumerate objects: %w", err)
		}

		f, err := os.Create(args[0])
		if err != nil {
			return fmt.Errorf("pack: %w", err)
		}
		defer f.Close()

		if err := packfile.Export(f, r.store, ids, packWorkers); err != nil {
			return fmt.Errorf("pack: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "packed %d objects into %s\n", len(ids), args[0])
		return nil
	},
}

var unpackCmd = &cobra.Command{
	Use:   "unpack <input.wllp>",
	Short: "Import a WLLP packfile's objects into the current repository's object store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRepo()
		if err != nil {
			return err
		}
		defer r.Close()

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("unpack: %w", err)
		}
		defer f.Close()

		ids, err := packfile.Import(r.store, f)
		if err != nil {
			return fmt.Errorf("unpack: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "imported %d objects from %s\n", len(ids), args[0])
		return nil
	},
}

func init() {
	packCmd.Flags().IntVar(&packWorkers, "workers", packfile.DefaultWorkers, "compression worker count")
}
