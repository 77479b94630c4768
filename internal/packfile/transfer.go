package packfile

import (
	"io"

	"github.com/worldline-vcs/wll/internal/crypto"
	"github.com/worldline-vcs/wll/internal/objstore"
)

// Export reads every object named in ids from store and writes a WLLP
// stream to w, using workers concurrent compressors. A missing id fails
// the whole export rather than silently producing a partial pack.
func Export(w io.Writer, store objstore.Store, ids []crypto.ObjectId, workers int) error {
	entries := make([]Entry, 0, len(ids))
	for _, id := range ids {
		kind, data, err := store.Read(id)
		if err != nil {
			return err
		}
		entries = append(entries, Entry{ID: id, Kind: kind, Data: data})
	}
	return Write(w, entries, workers)
}

// Import decodes a WLLP stream and writes every entry into store,
// returning the ids it wrote. Import trusts the store's own Write to
// recompute and verify each entry's content address; an entry transplanted
// or tampered in transit surfaces as a mismatched id from what the pack
// claimed.
func Import(store objstore.Store, r io.Reader) ([]crypto.ObjectId, error) {
	entries, err := Read(r)
	if err != nil {
		return nil, err
	}
	ids := make([]crypto.ObjectId, 0, len(entries))
	for _, e := range entries {
		id, err := store.Write(e.Kind, e.Data)
		if err != nil {
			return nil, err
		}
		if id != e.ID {
			return nil, &TransplantedEntryError{Claimed: e.ID, Computed: id}
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// TransplantedEntryError reports a pack entry whose claimed id does not
// match the content address the receiving store computed for it.
type TransplantedEntryError struct {
	Claimed  crypto.ObjectId
	Computed crypto.ObjectId
}

func (e *TransplantedEntryError) Error() string {
	return "packfile: entry claimed id " + e.Claimed.String() + " but store computed " + e.Computed.String()
}
