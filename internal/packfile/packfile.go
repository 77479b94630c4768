// Package packfile implements the WLLP interop format: a single-file,
// content-addressed bundle of objects for export/import between two
// worldline object stores. It never participates in any core invariant —
// the ledger, DAG, gate, and replay packages never import it — it exists
// purely as a transport encoding, reachable only from an explicit pack or
// unpack operation.
package packfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"runtime"
	"sort"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/worldline-vcs/wll/internal/crypto"
	"github.com/worldline-vcs/wll/internal/objstore"
)

var magic = [4]byte{'W', 'L', 'L', 'P'}

const formatVersion uint32 = 1

const fanoutSize = 256

// Entry is one object bound for (or read from) a packfile.
type Entry struct {
	ID   crypto.ObjectId
	Kind objstore.ObjectKind
	Data []byte // uncompressed, canonical bytes as stored in objstore
}

// DefaultWorkers bounds the compression pool when the caller asks for
// workers <= 0.
const DefaultWorkers = 8

// Write encodes entries into the WLLP wire format:
//
//	"WLLP" ‖ version(u32 BE) ‖ count(u32 BE) ‖ fanout[256](u32 BE each) ‖
//	entries ‖ BLAKE3(everything preceding this trailer)
//
// entries are sorted by ID before encoding, and the fanout table holds, at
// index b, the number of entries whose ID's first byte is <= b — the same
// cumulative-count layout Git's pack index uses, enabling a binary search
// for a given ID without decompressing anything. Each entry is encoded as
// ID(32B) ‖ kind(1B) ‖ uncompressed_size(varint) ‖ compressed_size(varint)
// ‖ zstd(Data). Compression runs on a bounded worker pool so large exports
// aren't serialized through a single encoder.
func Write(w io.Writer, entries []Entry, workers int) error {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID.Less(sorted[j].ID) })

	compressed, err := compressAll(sorted, workers)
	if err != nil {
		return err
	}

	var body bytes.Buffer
	body.Write(magic[:])
	if err := binary.Write(&body, binary.BigEndian, formatVersion); err != nil {
		return err
	}
	if err := binary.Write(&body, binary.BigEndian, uint32(len(sorted))); err != nil {
		return err
	}

	fanout := buildFanout(sorted)
	for _, c := range fanout {
		if err := binary.Write(&body, binary.BigEndian, c); err != nil {
			return err
		}
	}

	var varintBuf [binary.MaxVarintLen64]byte
	for i, e := range sorted {
		body.Write(e.ID[:])
		body.WriteByte(byte(e.Kind))
		n := binary.PutUvarint(varintBuf[:], uint64(len(e.Data)))
		body.Write(varintBuf[:n])
		n = binary.PutUvarint(varintBuf[:], uint64(len(compressed[i])))
		body.Write(varintBuf[:n])
		body.Write(compressed[i])
	}

	trailer := crypto.HashWithDomain(crypto.DomainPack, body.Bytes())
	body.Write(trailer[:])

	_, err = w.Write(body.Bytes())
	return err
}

// buildFanout computes the cumulative per-first-byte entry counts for a
// slice already sorted by ID.
func buildFanout(sorted []Entry) [fanoutSize]uint32 {
	var counts [fanoutSize]uint32
	for _, e := range sorted {
		counts[e.ID[0]]++
	}
	var fanout [fanoutSize]uint32
	var running uint32
	for b := 0; b < fanoutSize; b++ {
		running += counts[b]
		fanout[b] = running
	}
	return fanout
}

// Read decodes a WLLP stream, verifying its trailer before returning any
// entry.
func Read(r io.Reader) ([]Entry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("packfile: read stream: %w", err)
	}
	return Parse(data)
}

// entryHeader is one decoded, not-yet-decompressed entry position within a
// validated pack, built by index and shared by Parse and Lookup.
type entryHeader struct {
	id           crypto.ObjectId
	kind         objstore.ObjectKind
	uncompressed uint64
	bodyStart    int
	bodyEnd      int
}

// index validates the header, magic, version, and trailer hash, then walks
// every entry's fixed-size header (without decompressing any body),
// returning the fanout table and each entry's byte range.
func index(data []byte) ([fanoutSize]uint32, []entryHeader, error) {
	var fanout [fanoutSize]uint32
	if len(data) < 4+4+4+fanoutSize*4+32 {
		return fanout, nil, &CorruptPackError{Reason: "shorter than the minimum header+fanout+trailer size"}
	}
	if !bytes.Equal(data[:4], magic[:]) {
		return fanout, nil, &CorruptPackError{Reason: "bad magic, not a WLLP stream"}
	}
	trailerAt := len(data) - 32
	want := crypto.HashWithDomain(crypto.DomainPack, data[:trailerAt])
	var got crypto.ObjectId
	copy(got[:], data[trailerAt:])
	if want != got {
		return fanout, nil, &CorruptPackError{Reason: "trailer hash mismatch"}
	}

	version := binary.BigEndian.Uint32(data[4:8])
	if version != formatVersion {
		return fanout, nil, &CorruptPackError{Reason: fmt.Sprintf("unsupported format version %d", version)}
	}
	count := binary.BigEndian.Uint32(data[8:12])

	cursor := 12
	for b := 0; b < fanoutSize; b++ {
		fanout[b] = binary.BigEndian.Uint32(data[cursor : cursor+4])
		cursor += 4
	}

	headers := make([]entryHeader, 0, count)
	for i := uint32(0); i < count; i++ {
		if cursor+32+1 > trailerAt {
			return fanout, nil, &CorruptPackError{Reason: "entry header runs past the trailer"}
		}
		var h entryHeader
		copy(h.id[:], data[cursor:cursor+32])
		cursor += 32
		h.kind = objstore.ObjectKind(data[cursor])
		cursor++

		rawLen, n := binary.Uvarint(data[cursor:trailerAt])
		if n <= 0 {
			return fanout, nil, &CorruptPackError{Reason: "malformed uncompressed-size varint"}
		}
		cursor += n
		h.uncompressed = rawLen

		compLen, n := binary.Uvarint(data[cursor:trailerAt])
		if n <= 0 {
			return fanout, nil, &CorruptPackError{Reason: "malformed compressed-size varint"}
		}
		cursor += n

		if cursor+int(compLen) > trailerAt {
			return fanout, nil, &CorruptPackError{Reason: "entry body runs past the trailer"}
		}
		h.bodyStart = cursor
		h.bodyEnd = cursor + int(compLen)
		cursor = h.bodyEnd

		headers = append(headers, h)
	}

	return fanout, headers, nil
}

// Parse decodes data already fully in memory and decompresses every entry,
// used by Read and directly by callers that already hold the bytes (e.g.
// the CLI reading a file for a full unpack).
func Parse(data []byte) ([]Entry, error) {
	_, headers, err := index(data)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(headers))
	for i, h := range headers {
		raw, err := decompressOne(data[h.bodyStart:h.bodyEnd])
		if err != nil {
			return nil, fmt.Errorf("packfile: decompress entry %d: %w", i, err)
		}
		if uint64(len(raw)) != h.uncompressed {
			return nil, &CorruptPackError{Reason: fmt.Sprintf("entry %d: decompressed size %d does not match recorded size %d", i, len(raw), h.uncompressed)}
		}
		entries = append(entries, Entry{ID: h.id, Kind: h.kind, Data: raw})
	}
	return entries, nil
}

// Lookup uses the fanout table to binary-search for id among entries
// sharing its first byte, decompressing only that single matching entry
// rather than the whole pack — the random-access path the fanout index
// exists for.
func Lookup(data []byte, id crypto.ObjectId) (Entry, bool, error) {
	fanout, headers, err := index(data)
	if err != nil {
		return Entry{}, false, err
	}

	lo := uint32(0)
	if id[0] > 0 {
		lo = fanout[id[0]-1]
	}
	hi := fanout[id[0]]

	i := sort.Search(int(hi-lo), func(k int) bool {
		return !headers[int(lo)+k].id.Less(id)
	})
	idx := int(lo) + i
	if idx >= int(hi) || headers[idx].id != id {
		return Entry{}, false, nil
	}

	h := headers[idx]
	raw, err := decompressOne(data[h.bodyStart:h.bodyEnd])
	if err != nil {
		return Entry{}, false, fmt.Errorf("packfile: decompress entry: %w", err)
	}
	return Entry{ID: h.id, Kind: h.kind, Data: raw}, true, nil
}

// CorruptPackError reports a structurally invalid WLLP stream.
type CorruptPackError struct {
	Reason string
}

func (e *CorruptPackError) Error() string {
	return fmt.Sprintf("packfile: corrupt pack: %s", e.Reason)
}

var decoderPool = sync.Pool{
	New: func() any {
		d, _ := zstd.NewReader(nil)
		return d
	},
}

func decompressOne(compressed []byte) ([]byte, error) {
	d := decoderPool.Get().(*zstd.Decoder)
	defer decoderPool.Put(d)
	if err := d.Reset(bytes.NewReader(compressed)); err != nil {
		return nil, err
	}
	return io.ReadAll(d)
}

func clampWorkers(workers int) int {
	if workers > 0 {
		return workers
	}
	n := runtime.NumCPU()
	if n > DefaultWorkers {
		n = DefaultWorkers
	}
	if n < 1 {
		n = 1
	}
	return n
}
