// Package wllcli wires the thin wll command-line surface to the core
// packages: forge opens or creates a repository, seal pushes a commitment
// through the gate and ledger, verify and replay drive the validator and
// replay engine, and pack/unpack copy every object in the object store
// through the packfile interop format (the chain index and refs are not
// included).
package wllcli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/worldline-vcs/wll/internal/crypto"
	"github.com/worldline-vcs/wll/internal/fabric"
	"github.com/worldline-vcs/wll/internal/gate"
	"github.com/worldline-vcs/wll/internal/identity"
	"github.com/worldline-vcs/wll/internal/ledger"
	"github.com/worldline-vcs/wll/internal/objstore"
	"github.com/worldline-vcs/wll/internal/refs"
	"github.com/worldline-vcs/wll/internal/wllconfig"
)

// repo bundles the open handles every subcommand but forge needs.
type repo struct {
	cfg      *wllconfig.Config
	store    *objstore.BoltStore
	ledger   *ledger.Ledger
	refs     *refs.Store
	identity identity.Identity
}

func (r *repo) Close() {
	r.ledger.Close()
	r.store.Close()
}

// openRepo loads ambient config, then opens the object store, chain index,
// and ref store under cfg.Core.Dir. It does not create the directory — the
// forge command does that — so commands other than forge fail clearly when run
// outside a repository.
func openRepo() (*repo, error) {
	cfg, err := wllconfig.Load()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(cfg.Core.Dir); os.IsNotExist(err) {
		return nil, fmt.Errorf("not a wll repository (no %s): run \"wll forge\" first", cfg.Core.Dir)
	}

	store, err := objstore.OpenBoltStore(filepath.Join(cfg.Core.Dir, "objects.db"))
	if err != nil {
		return nil, err
	}
	clock := fabric.NewClock(1)
	l, err := ledger.Open(filepath.Join(cfg.Core.Dir, "chain.db"), store, clock)
	if err != nil {
		store.Close()
		return nil, err
	}
	refStore, err := refs.Open(filepath.Join(cfg.Core.Dir, "refs"))
	if err != nil {
		l.Close()
		store.Close()
		return nil, err
	}
	id, err := identity.Load(cfg.Core.Dir)
	if err != nil {
		l.Close()
		store.Close()
		return nil, err
	}

	return &repo{cfg: cfg, store: store, ledger: l, refs: refStore, identity: id}, nil
}

// currentWorldline resolves HEAD's branch to the worldline it tracks.
func (r *repo) currentWorldline() (crypto.ObjectId, string, error) {
	head, err := r.refs.GetHead()
	if err != nil {
		return crypto.ObjectId{}, "", err
	}
	if head.Kind != refs.HeadSymbolic {
		return head.Target, "", nil
	}
	branch, err := r.refs.GetBranch(head.BranchName)
	if err != nil {
		return crypto.ObjectId{}, "", err
	}
	return branch.Worldline, branch.Name, nil
}

// defaultPipeline is used when no pipeline.yaml is configured: a minimal
// gate that just requires a non-empty intent, matching what a freshly
// forged repository has before an operator hand-authors a stricter policy.
func defaultPipeline() *gate.Pipeline {
	config := gate.PipelineConfig{Rules: []gate.RuleConfig{{Name: "RequireIntent"}}}
	return gate.NewPipeline([]gate.PolicyRule{gate.RequireIntent{}}, config)
}
