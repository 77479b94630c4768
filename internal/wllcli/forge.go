package wllcli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/worldline-vcs/wll/internal/crypto"
	"github.com/worldline-vcs/wll/internal/fabric"
	"github.com/worldline-vcs/wll/internal/identity"
	"github.com/worldline-vcs/wll/internal/ledger"
	"github.com/worldline-vcs/wll/internal/objstore"
	"github.com/worldline-vcs/wll/internal/refs"
	"github.com/worldline-vcs/wll/internal/wllconfig"
)

var forgeCmd = &cobra.Command{
	Use:   "forge",
	Short: "Create a new worldline repository in the current directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := wllconfig.Load()
		if err != nil {
			return err
		}

		id, err := identity.Load(cfg.Core.Dir)
		if err != nil {
			return fmt.Errorf("forge: %w", err)
		}

		store, err := objstore.OpenBoltStore(filepath.Join(cfg.Core.Dir, "objects.db"))
		if err != nil {
			return fmt.Errorf("forge: open object store: %w", err)
		}
		defer store.Close()

		clock := fabric.NewClock(1)
		l, err := ledger.Open(filepath.Join(cfg.Core.Dir, "chain.db"), store, clock)
		if err != nil {
			return fmt.Errorf("forge: open chain index: %w", err)
		}
		defer l.Close()

		refStore, err := refs.Open(filepath.Join(cfg.Core.Dir, "refs"))
		if err != nil {
			return fmt.Errorf("forge: open refs store: %w", err)
		}

		if _, err := refStore.GetBranch("main"); err == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "worldline repository already forged at %s\n", cfg.Core.Dir)
			return nil
		}

		if _, err := refStore.CreateBranch("main", id.WorldlineId, crypto.ZeroObjectId); err != nil {
			return fmt.Errorf("forge: create main branch: %w", err)
		}
		if err := refStore.SetHeadSymbolic("main"); err != nil {
			return fmt.Errorf("forge: set HEAD: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "forged worldline %s at %s\n", id.WorldlineId, cfg.Core.Dir)
		return nil
	},
}
