// Package dag implements the provenance DAG (C6): the causal graph over
// receipt hashes used for ancestry, descendant, and common-ancestor
// queries. The common-ancestor search uses a binary-lifting skip table as
// its fast path, generalized from timeline leaf indices to
// receipt-hash-keyed nodes with multi-parent (merge) support.
package dag

import (
	"fmt"
	"sort"

	"github.com/worldline-vcs/wll/internal/crypto"
)

// node is one entry in the provenance graph: a receipt hash, its causal
// parents, and the seq it carries (needed for LCA tie-breaking and for the
// binary-lifting skip table's depth bookkeeping).
type node struct {
	hash    crypto.ObjectId
	parents []crypto.ObjectId
	seq     uint64
}

// CycleDetectedError is reported when a traversal revisits a node already
// on its own ancestor/descendant path — the DAG is acyclic by
// construction, so this always indicates corruption upstream.
type CycleDetectedError struct {
	Hash crypto.ObjectId
}

func (e *CycleDetectedError) Error() string {
	return fmt.Sprintf("dag: cycle detected at node %s", e.Hash)
}

// ProvenanceDag is the causal graph over receipt hashes, keyed by value
// (the hash itself) rather than a back-pointer into the ledger, per §9's
// "cyclic references between DAG and ledger" design note.
type ProvenanceDag struct {
	nodes map[crypto.ObjectId]*node
	// skip[i][k] = 2^k-th single-parent ancestor of node i, used for LCA
	// on the common, single-parent-chain case; merge nodes fall back to
	// the BFS ancestor-set intersection below.
	skip   map[crypto.ObjectId]map[int]crypto.ObjectId
	maxK   int
}

// New creates an empty provenance DAG.
func New() *ProvenanceDag {
	return &ProvenanceDag{
		nodes: make(map[crypto.ObjectId]*node),
		skip:  make(map[crypto.ObjectId]map[int]crypto.ObjectId),
		maxK:  20, // supports chains up to 2^20 deep before degrading to BFS
	}
}

// AddNode records hash's causal parents. Idempotent: re-adding the same
// (hash, parents) pair is a no-op, per §8's idempotence law.
func (d *ProvenanceDag) AddNode(hash crypto.ObjectId, parents []crypto.ObjectId, seq uint64) {
	if _, exists := d.nodes[hash]; exists {
		return
	}
	n := &node{hash: hash, parents: append([]crypto.ObjectId(nil), parents...), seq: seq}
	d.nodes[hash] = n
	d.buildSkipEntry(hash)
}

func (d *ProvenanceDag) buildSkipEntry(hash crypto.ObjectId) {
	n := d.nodes[hash]
	table := make(map[int]crypto.ObjectId, d.maxK)
	d.skip[hash] = table

	var firstParent crypto.ObjectId
	hasParent := len(n.parents) > 0
	if hasParent {
		firstParent = n.parents[0]
	}

	if hasParent {
		table[0] = firstParent
	}
	for k := 1; k < d.maxK; k++ {
		prev, ok := table[k-1]
		if !ok {
			break
		}
		if up, ok := d.skip[prev]; ok {
			if v, ok := up[k-1]; ok {
				table[k] = v
			}
		}
	}
}

// Ancestors returns every node reachable by following causal-parent edges
// from hash, via cycle-defensive BFS: a parent edge leading back to hash
// itself is reported as corruption; any other already-visited node is
// skipped, so the walk always terminates.
func (d *ProvenanceDag) Ancestors(hash crypto.ObjectId) (map[crypto.ObjectId]bool, error) {
	visited := map[crypto.ObjectId]bool{}
	queue := []crypto.ObjectId{hash}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		n, ok := d.nodes[cur]
		if !ok {
			continue
		}
		for _, p := range n.parents {
			if visited[p] {
				if p == hash {
					return nil, &CycleDetectedError{Hash: p}
				}
				continue
			}
			visited[p] = true
			queue = append(queue, p)
		}
	}
	return visited, nil
}

// Descendants returns every node that can reach hash via causal-parent
// edges (i.e. every node for which hash is an ancestor).
func (d *ProvenanceDag) Descendants(hash crypto.ObjectId) (map[crypto.ObjectId]bool, error) {
	children := make(map[crypto.ObjectId][]crypto.ObjectId)
	for h, n := range d.nodes {
		for _, p := range n.parents {
			children[p] = append(children[p], h)
		}
	}

	visited := map[crypto.ObjectId]bool{}
	queue := []crypto.ObjectId{hash}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, c := range children[cur] {
			if visited[c] {
				if c == hash {
					return nil, &CycleDetectedError{Hash: c}
				}
				continue
			}
			visited[c] = true
			queue = append(queue, c)
		}
	}
	return visited, nil
}

// CommonAncestor finds the lowest common ancestor of a and b: the deepest
// node reachable from both, with smallest seq breaking ties. Uses the
// binary-lifting skip table when both nodes live on a single-parent chain;
// falls back to BFS ancestor-set intersection for merge topologies.
func (d *ProvenanceDag) CommonAncestor(a, b crypto.ObjectId) (crypto.ObjectId, bool, error) {
	if a == b {
		return a, true, nil
	}
	if _, ok := d.nodes[a]; !ok {
		return crypto.ObjectId{}, false, fmt.Errorf("dag: unknown node %s", a)
	}
	if _, ok := d.nodes[b]; !ok {
		return crypto.ObjectId{}, false, fmt.Errorf("dag: unknown node %s", b)
	}

	if d.isSingleParentChain(a) && d.isSingleParentChain(b) {
		if lca, ok := d.skipTableLCA(a, b); ok {
			return lca, true, nil
		}
	}
	return d.bfsAncestorLCA(a, b)
}

func (d *ProvenanceDag) isSingleParentChain(hash crypto.ObjectId) bool {
	for cur := hash; ; {
		n, ok := d.nodes[cur]
		if !ok {
			return true
		}
		if len(n.parents) > 1 {
			return false
		}
		if len(n.parents) == 0 {
			return true
		}
		cur = n.parents[0]
	}
}

func (d *ProvenanceDag) depth(hash crypto.ObjectId) int {
	depth := 0
	cur := hash
	for {
		table, ok := d.skip[cur]
		if !ok {
			break
		}
		parent, ok := table[0]
		if !ok {
			break
		}
		cur = parent
		depth++
	}
	return depth
}

func (d *ProvenanceDag) liftUp(hash crypto.ObjectId, steps int) crypto.ObjectId {
	cur := hash
	for k := 0; k < d.maxK && steps > 0; k++ {
		if steps&(1<<k) != 0 {
			table, ok := d.skip[cur]
			if !ok {
				break
			}
			next, ok := table[k]
			if !ok {
				break
			}
			cur = next
			steps &^= 1 << k
		}
	}
	return cur
}

func (d *ProvenanceDag) skipTableLCA(a, b crypto.ObjectId) (crypto.ObjectId, bool) {
	depthA, depthB := d.depth(a), d.depth(b)
	if depthA > depthB {
		a = d.liftUp(a, depthA-depthB)
	} else if depthB > depthA {
		b = d.liftUp(b, depthB-depthA)
	}
	if a == b {
		return a, true
	}

	for k := d.maxK - 1; k >= 0; k-- {
		aTable, aOK := d.skip[a]
		bTable, bOK := d.skip[b]
		if !aOK || !bOK {
			continue
		}
		aUp, aHas := aTable[k]
		bUp, bHas := bTable[k]
		if aHas && bHas && aUp != bUp {
			a, b = aUp, bUp
		}
	}
	table, ok := d.skip[a]
	if !ok {
		return crypto.ObjectId{}, false
	}
	parent, ok := table[0]
	return parent, ok
}

func (d *ProvenanceDag) bfsAncestorLCA(a, b crypto.ObjectId) (crypto.ObjectId, bool, error) {
	ancestorsA, err := d.Ancestors(a)
	if err != nil {
		return crypto.ObjectId{}, false, err
	}
	ancestorsA[a] = true

	ancestorsB, err := d.Ancestors(b)
	if err != nil {
		return crypto.ObjectId{}, false, err
	}
	ancestorsB[b] = true

	var candidates []crypto.ObjectId
	for h := range ancestorsA {
		if ancestorsB[h] {
			candidates = append(candidates, h)
		}
	}
	if len(candidates) == 0 {
		return crypto.ObjectId{}, false, nil
	}

	// The LCA is the deepest common ancestor (depth measured along the
	// first-parent chain); a depth tie goes to the smallest seq, and a
	// further seq tie to the smallest ObjectId for a total, deterministic
	// order.
	depths := make(map[crypto.ObjectId]int, len(candidates))
	for _, h := range candidates {
		depths[h] = d.depth(h)
	}
	sort.Slice(candidates, func(i, j int) bool {
		di, dj := depths[candidates[i]], depths[candidates[j]]
		if di != dj {
			return di > dj
		}
		si, sj := d.nodes[candidates[i]].seq, d.nodes[candidates[j]].seq
		if si != sj {
			return si < sj
		}
		return candidates[i].Less(candidates[j])
	})
	return candidates[0], true, nil
}
