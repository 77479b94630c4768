package packfile

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// compressionJob is one unit of work submitted to the pool.
type compressionJob struct {
	index  int
	data   []byte
	result chan<- compressedEntry
}

type compressedEntry struct {
	index int
	data  []byte
	err   error
}

// compressionPool runs a bounded set of zstd encoders behind a job
// channel, recycling encoders through a sync.Pool so a large export
// doesn't allocate one per entry.
type compressionPool struct {
	jobs    chan compressionJob
	wg      sync.WaitGroup
	encoder sync.Pool
}

func newCompressionPool(workers int) *compressionPool {
	workers = clampWorkers(workers)
	p := &compressionPool{
		jobs: make(chan compressionJob, workers*2),
		encoder: sync.Pool{
			New: func() any {
				enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
				return enc
			},
		},
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *compressionPool) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		data, err := p.compressOne(job.data)
		job.result <- compressedEntry{index: job.index, data: data, err: err}
	}
}

func (p *compressionPool) compressOne(data []byte) ([]byte, error) {
	enc := p.encoder.Get().(*zstd.Encoder)
	defer p.encoder.Put(enc)

	var buf bytes.Buffer
	enc.Reset(&buf)
	if _, err := enc.Write(data); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

func (p *compressionPool) close() {
	close(p.jobs)
	p.wg.Wait()
}

// compressAll compresses every entry's Data concurrently, returning results
// in the same order as entries.
func compressAll(entries []Entry, workers int) ([][]byte, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	pool := newCompressionPool(workers)
	defer pool.close()

	resultChan := make(chan compressedEntry, len(entries))
	for i, e := range entries {
		pool.jobs <- compressionJob{index: i, data: e.Data, result: resultChan}
	}

	out := make([][]byte, len(entries))
	for i := 0; i < len(entries); i++ {
		r := <-resultChan
		if r.err != nil {
			return nil, fmt.Errorf("packfile: compress entry %d: %w", r.index, r.err)
		}
		out[r.index] = r.data
	}
	return out, nil
}
