package packfile

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/worldline-vcs/wll/internal/crypto"
	"github.com/worldline-vcs/wll/internal/objstore"
)

func sampleEntries(n int) []Entry {
	entries := make([]Entry, n)
	for i := 0; i < n; i++ {
		data := []byte(fmt.Sprintf("object payload number %d, padded out a bit so zstd has something to chew on aaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", i))
		id := crypto.HashWithDomain(crypto.DomainBlob, data)
		entries[i] = Entry{ID: id, Kind: objstore.KindBlob, Data: data}
	}
	return entries
}

func TestWriteThenParseRoundTrips(t *testing.T) {
	entries := sampleEntries(50)

	var buf bytes.Buffer
	if err := Write(&buf, entries, 4); err != nil {
		t.Fatalf("write: %v", err)
	}

	parsed, err := Parse(buf.Bytes())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(parsed) != len(entries) {
		t.Fatalf("expected %d entries, got %d", len(entries), len(parsed))
	}

	byID := make(map[crypto.ObjectId]Entry, len(parsed))
	for _, e := range parsed {
		byID[e.ID] = e
	}
	for _, want := range entries {
		got, ok := byID[want.ID]
		if !ok {
			t.Fatalf("missing entry %s after round trip", want.ID)
		}
		if !bytes.Equal(got.Data, want.Data) {
			t.Fatalf("entry %s: data mismatch after round trip", want.ID)
		}
		if got.Kind != want.Kind {
			t.Fatalf("entry %s: kind mismatch after round trip", want.ID)
		}
	}
}

func TestParseRejectsBadMagic(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sampleEntries(1), 1); err != nil {
		t.Fatalf("write: %v", err)
	}
	data := buf.Bytes()
	data[0] = 'X'

	_, err := Parse(data)
	if err == nil {
		t.Fatal("expected bad magic to be rejected")
	}
	if _, ok := err.(*CorruptPackError); !ok {
		t.Fatalf("expected *CorruptPackError, got %T: %v", err, err)
	}
}

func TestParseRejectsTamperedBodyViaTrailer(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sampleEntries(3), 1); err != nil {
		t.Fatalf("write: %v", err)
	}
	data := buf.Bytes()
	// Flip a byte in the middle of the pack without touching the trailer
	// (with three small entries this lands in the 1024-byte fanout table):
	// the recomputed hash must no longer match.
	data[len(data)/2] ^= 0xFF

	_, err := Parse(data)
	if err == nil {
		t.Fatal("expected tampered pack bytes to fail trailer verification")
	}
	if _, ok := err.(*CorruptPackError); !ok {
		t.Fatalf("expected *CorruptPackError, got %T: %v", err, err)
	}
}

func TestLookupFindsEntryWithoutDecompressingWholePack(t *testing.T) {
	entries := sampleEntries(200)
	var buf bytes.Buffer
	if err := Write(&buf, entries, 8); err != nil {
		t.Fatalf("write: %v", err)
	}
	data := buf.Bytes()

	target := entries[137]
	found, ok, err := Lookup(data, target.ID)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !ok {
		t.Fatal("expected lookup to find the target entry")
	}
	if !bytes.Equal(found.Data, target.Data) {
		t.Fatal("lookup returned wrong data for target id")
	}

	var missing crypto.ObjectId
	missing[0] = target.ID[0]
	missing[31] = target.ID[31] ^ 0xFF
	_, ok, err = Lookup(data, missing)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if ok {
		t.Fatal("expected lookup to report a miss for an id that was never packed")
	}
}

func TestExportImportRoundTripsThroughTwoStores(t *testing.T) {
	src := objstore.NewMemoryStore()
	entries := sampleEntries(20)
	ids := make([]crypto.ObjectId, len(entries))
	for i, e := range entries {
		id, err := src.Write(e.Kind, e.Data)
		if err != nil {
			t.Fatalf("seed source store: %v", err)
		}
		ids[i] = id
	}

	var buf bytes.Buffer
	if err := Export(&buf, src, ids, 4); err != nil {
		t.Fatalf("export: %v", err)
	}

	dst := objstore.NewMemoryStore()
	imported, err := Import(dst, &buf)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(imported) != len(ids) {
		t.Fatalf("expected %d imported ids, got %d", len(ids), len(imported))
	}
	for _, id := range ids {
		kind, _, err := dst.Read(id)
		if err != nil {
			t.Fatalf("read imported object %s: %v", id, err)
		}
		if kind != objstore.KindBlob {
			t.Fatalf("expected kind blob for %s, got %v", id, kind)
		}
	}
}

func TestWriteEmptyEntriesProducesParseableEmptyPack(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, nil, 2); err != nil {
		t.Fatalf("write: %v", err)
	}
	entries, err := Parse(buf.Bytes())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected 0 entries, got %d", len(entries))
	}
}
