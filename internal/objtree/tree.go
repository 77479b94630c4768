// Package objtree implements the canonical tree-entry serialization and
// mode codes from §6, and the Tree object kind from §4.2.
package objtree

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/worldline-vcs/wll/internal/crypto"
	"github.com/worldline-vcs/wll/internal/objstore"
)

// Mode is a Unix-style file mode code, per §6's fixed set.
type Mode uint16

const (
	ModeRegular    Mode = 0o100644
	ModeExecutable Mode = 0o100755
	ModeSymlink    Mode = 0o120000
	ModeDirectory  Mode = 0o040000
)

// Entry is one named object within a tree.
type Entry struct {
	Mode Mode
	Name string
	ID   crypto.ObjectId
}

// Tree is a canonically-ordered list of entries.
type Tree struct {
	Entries []Entry
}

// NewTree sorts entries byte-lexicographically by name, as §6 requires
// before hashing, and returns the canonical Tree.
func NewTree(entries []Entry) Tree {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	return Tree{Entries: sorted}
}

// Serialize encodes the tree per §6:
//
//	[count varint][for each: mode(u16 LE) || name_len(varint) || name_bytes || object_id(32B)]
func (t Tree) Serialize() []byte {
	buf := make([]byte, 0, 64)
	var scratch [binary.MaxVarintLen64]byte

	n := binary.PutUvarint(scratch[:], uint64(len(t.Entries)))
	buf = append(buf, scratch[:n]...)

	for _, e := range t.Entries {
		var modeBytes [2]byte
		binary.LittleEndian.PutUint16(modeBytes[:], uint16(e.Mode))
		buf = append(buf, modeBytes[:]...)

		n = binary.PutUvarint(scratch[:], uint64(len(e.Name)))
		buf = append(buf, scratch[:n]...)
		buf = append(buf, []byte(e.Name)...)
		buf = append(buf, e.ID[:]...)
	}
	return buf
}

// Deserialize parses bytes produced by Serialize, rejecting trailing or
// truncated input.
func Deserialize(data []byte) (Tree, error) {
	count, n := binary.Uvarint(data)
	if n <= 0 {
		return Tree{}, fmt.Errorf("objtree: invalid entry count varint")
	}
	data = data[n:]

	entries := make([]Entry, 0, count)
	for i := uint64(0); i < count; i++ {
		if len(data) < 2 {
			return Tree{}, fmt.Errorf("objtree: truncated mode field")
		}
		mode := Mode(binary.LittleEndian.Uint16(data[:2]))
		data = data[2:]

		nameLen, n := binary.Uvarint(data)
		if n <= 0 {
			return Tree{}, fmt.Errorf("objtree: invalid name length varint")
		}
		data = data[n:]

		if uint64(len(data)) < nameLen+32 {
			return Tree{}, fmt.Errorf("objtree: truncated entry")
		}
		name := string(data[:nameLen])
		data = data[nameLen:]

		var id crypto.ObjectId
		copy(id[:], data[:32])
		data = data[32:]

		entries = append(entries, Entry{Mode: mode, Name: name, ID: id})
	}
	if len(data) != 0 {
		return Tree{}, fmt.Errorf("objtree: %d trailing bytes after tree", len(data))
	}
	return Tree{Entries: entries}, nil
}

// Write stores the tree's canonical serialization in store and returns its
// content address.
func Write(store objstore.Store, t Tree) (crypto.ObjectId, error) {
	return store.Write(objstore.KindTree, t.Serialize())
}

// Read loads and parses a tree by id.
func Read(store objstore.Store, id crypto.ObjectId) (Tree, error) {
	kind, data, err := store.Read(id)
	if err != nil {
		return Tree{}, err
	}
	if kind != objstore.KindTree {
		return Tree{}, fmt.Errorf("objtree: object %s is not a tree (kind=%v)", id, kind)
	}
	return Deserialize(data)
}

// TransitiveSize walks a tree recursively (directory entries resolve to
// child trees, all other entries resolve to blob size) and sums the total
// byte size reachable from root, for MaxSizeLimit's enforcement.
func TransitiveSize(store objstore.Store, root crypto.ObjectId) (int64, error) {
	t, err := Read(store, root)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range t.Entries {
		if e.Mode == ModeDirectory {
			sub, err := TransitiveSize(store, e.ID)
			if err != nil {
				return 0, err
			}
			total += sub
			continue
		}
		_, data, err := store.Read(e.ID)
		if err != nil {
			return 0, err
		}
		total += int64(len(data))
	}
	return total, nil
}
