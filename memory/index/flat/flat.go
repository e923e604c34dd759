// Package flat provides an exact squared-L2 similarity index persisted to disk
// as a binary vector artifact plus a JSON metadata sidecar.
//
// Files:
//   - <path>:      "NIMFLAT1" magic, uint32 dim, uint64 count, count*dim float32 (little endian)
//   - <path>.meta: JSON array of {text, metadata} in the same positional order
//
// Both files are rewritten after every Add (flush on write).
package flat

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/goccy/go-json"

	"github.com/becomeliminal/nim-memory/memory"
)

const magic = "NIMFLAT1"

// headerSize is the 8-byte magic plus the uint32 dimension and uint64 count.
const headerSize = 8 + 4 + 8

// overFetch is the candidate multiplier applied before conversation filtering.
const overFetch = 2

// Index is a brute-force squared-L2 index. It is safe for concurrent use;
// Add and its persistence form one critical section.
type Index struct {
	mu      sync.RWMutex
	path    string // empty: never persisted
	dim     int
	vectors []float32 // count*dim, row-major
	records []memory.Record
}

var _ memory.SemanticIndex = (*Index)(nil)

// New opens the index persisted at path, or starts an empty one if no index
// file exists. An empty path keeps the index in memory only.
//
// A sidecar that cannot be read is logged and replaced by an empty record list;
// the vectors are kept and searches skip positions without a record.
func New(dim int, path string) (*Index, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("index dimension must be positive, got %d", dim)
	}
	idx := &Index{path: path, dim: dim}
	if path == "" {
		return idx, nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		log.Printf("[INDEX] Starting new flat index at %s (dim=%d)", path, dim)
		return idx, nil
	}

	log.Printf("[INDEX] Loading flat index from %s", path)
	if err := idx.loadVectors(); err != nil {
		return nil, &memory.IndexPersistError{Op: "load", Path: path, Err: err}
	}
	records, err := loadSidecar(sidecarPath(path))
	if err != nil {
		log.Printf("[INDEX] Failed to load index metadata, continuing without it: %v", err)
		records = nil
	}
	idx.records = records
	if len(idx.records) != idx.count() {
		log.Printf("[INDEX] Metadata has %d records for %d vectors", len(idx.records), idx.count())
	}
	return idx, nil
}

// Add appends a vector and its record, then persists both files.
// On a persistence failure the record stays searchable in this process.
func (x *Index) Add(_ context.Context, text string, embedding []float32, meta memory.Metadata) error {
	if len(embedding) != x.dim {
		return fmt.Errorf("%w: got %d, want %d", memory.ErrDimensionMismatch, len(embedding), x.dim)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	x.vectors = append(x.vectors, embedding...)
	x.records = append(x.records, memory.Record{Text: text, Metadata: meta})
	return x.persistLocked()
}

// Search returns up to k records of conversationID, nearest first.
// It ranks the 2k nearest vectors overall and then filters by conversation, so
// fewer than k records may be returned even when more exist.
func (x *Index) Search(_ context.Context, embedding []float32, k int, conversationID string) ([]memory.Record, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	n := x.count()
	if n == 0 || k <= 0 {
		return []memory.Record{}, nil
	}
	if len(embedding) != x.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", memory.ErrDimensionMismatch, len(embedding), x.dim)
	}

	positions := x.nearest(embedding, k*overFetch)

	results := make([]memory.Record, 0, k)
	for _, pos := range positions {
		if pos >= len(x.records) {
			continue
		}
		rec := x.records[pos]
		if rec.Metadata.ConversationID != conversationID {
			continue
		}
		results = append(results, rec)
		if len(results) >= k {
			break
		}
	}
	return results, nil
}

// Len returns the number of stored vectors.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.count()
}

// Dump returns every record in insertion order.
func (x *Index) Dump() []memory.Record {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]memory.Record, len(x.records))
	copy(out, x.records)
	return out
}

func (x *Index) Close() error { return nil }

func (x *Index) count() int {
	return len(x.vectors) / x.dim
}

// nearest returns the positions of the n nearest vectors by squared L2
// distance, closest first. Ties keep insertion order.
func (x *Index) nearest(query []float32, n int) []int {
	count := x.count()
	dists := make([]float32, count)
	positions := make([]int, count)
	for i := 0; i < count; i++ {
		row := x.vectors[i*x.dim : (i+1)*x.dim]
		var d float32
		for j, v := range row {
			diff := v - query[j]
			d += diff * diff
		}
		dists[i] = d
		positions[i] = i
	}
	sort.SliceStable(positions, func(a, b int) bool {
		return dists[positions[a]] < dists[positions[b]]
	})
	if n < count {
		positions = positions[:n]
	}
	return positions
}

func (x *Index) persistLocked() error {
	if x.path == "" {
		return nil
	}
	if err := writeAtomic(x.path, x.writeVectors); err != nil {
		return &memory.IndexPersistError{Op: "write", Path: x.path, Err: err}
	}
	meta := sidecarPath(x.path)
	err := writeAtomic(meta, func(w io.Writer) error {
		return json.NewEncoder(w).Encode(x.records)
	})
	if err != nil {
		return &memory.IndexPersistError{Op: "write", Path: meta, Err: err}
	}
	return nil
}

func (x *Index) writeVectors(w io.Writer) error {
	if _, err := io.WriteString(w, magic); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(x.dim)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(x.count())); err != nil {
		return err
	}
	buf := make([]byte, 4)
	for _, v := range x.vectors {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

func (x *Index) loadVectors() error {
	f, err := os.Open(x.path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	r := bufio.NewReader(f)

	head := make([]byte, len(magic))
	if _, err := io.ReadFull(r, head); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if string(head) != magic {
		return fmt.Errorf("not a flat index file")
	}
	var dim uint32
	var count uint64
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("read dimension: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return fmt.Errorf("read count: %w", err)
	}
	if int(dim) != x.dim {
		return fmt.Errorf("%w: file has %d, want %d", memory.ErrDimensionMismatch, dim, x.dim)
	}
	// The header count must account for exactly the bytes that follow it.
	rowBytes := uint64(x.dim) * 4
	payload := uint64(info.Size() - headerSize)
	if count > payload/rowBytes || count*rowBytes != payload {
		return fmt.Errorf("header claims %d vectors, file holds %d payload bytes", count, payload)
	}

	vectors := make([]float32, int(count)*x.dim)
	buf := make([]byte, 4)
	for i := range vectors {
		if _, err := io.ReadFull(r, buf); err != nil {
			return fmt.Errorf("read vector data: %w", err)
		}
		vectors[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf))
	}
	x.vectors = vectors
	return nil
}

func loadSidecar(path string) ([]memory.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []memory.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return records, nil
}

func sidecarPath(path string) string {
	return path + ".meta"
}

// writeAtomic writes to a temp file in the target directory and renames it
// over path.
func writeAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if err := write(w); err != nil {
		tmp.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
