package chromem

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/becomeliminal/nim-memory/memory"
)

const collectionName = "conversation_memory"

// overFetch is the candidate multiplier applied before conversation filtering.
const overFetch = 2

const (
	metaConversation = "conversation_id"
	metaSource       = "source"
	metaNorm         = "norm"
)

// Index wraps chromem-go as a memory.SemanticIndex.
// chromem-go is a pure Go, embedded vector database; with a path it persists
// every document to disk as it is added.
//
// chromem-go stores embeddings normalized, so Add keeps each vector's original
// L2 norm in the document metadata. Search rebuilds the raw vectors and ranks
// them by squared L2 distance itself, the same way the flat index does.
type Index struct {
	db  *chromem.DB
	col *chromem.Collection
	dim int

	// mu serializes Add so document ids stay dense positional counters.
	mu sync.Mutex
}

var _ memory.SemanticIndex = (*Index)(nil)

// New opens a chromem-backed index. An empty path keeps everything in memory.
func New(dim int, path string) (*Index, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("index dimension must be positive, got %d", dim)
	}

	var db *chromem.DB
	if path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, &memory.IndexPersistError{Op: "load", Path: path, Err: err}
		}
	}

	col, err := db.GetOrCreateCollection(
		collectionName,
		nil, // No collection metadata
		nil, // No embedding func (we provide embeddings)
	)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	log.Printf("[CHROMEM] Opened collection %q with %d documents", collectionName, col.Count())
	return &Index{db: db, col: col, dim: dim}, nil
}

// Add stores a document under the next positional id.
// A zero vector has no direction and is rejected.
func (x *Index) Add(ctx context.Context, text string, embedding []float32, meta memory.Metadata) error {
	if len(embedding) != x.dim {
		return fmt.Errorf("%w: got %d, want %d", memory.ErrDimensionMismatch, len(embedding), x.dim)
	}
	norm := l2Norm(embedding)
	if norm == 0 {
		return errors.New("chromem: cannot index a zero vector")
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	doc := chromem.Document{
		ID:        positionID(x.col.Count()),
		Content:   text,
		Embedding: append([]float32(nil), embedding...),
		Metadata: map[string]string{
			metaConversation: meta.ConversationID,
			metaSource:       string(meta.Source),
			metaNorm:         strconv.FormatFloat(norm, 'g', -1, 64),
		},
	}
	if err := x.col.AddDocument(ctx, doc); err != nil {
		return &memory.IndexPersistError{Op: "add", Err: err}
	}
	return nil
}

// Search returns up to k records of conversationID, nearest first by squared
// L2 distance. It ranks the 2k nearest vectors overall and then filters by
// conversation, so fewer than k records may be returned even when more exist.
func (x *Index) Search(ctx context.Context, embedding []float32, k int, conversationID string) ([]memory.Record, error) {
	if x.col.Count() == 0 || k <= 0 {
		return []memory.Record{}, nil
	}
	if len(embedding) != x.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", memory.ErrDimensionMismatch, len(embedding), x.dim)
	}

	docs, err := x.all(ctx)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	dists := make([]float64, len(docs))
	for i, d := range docs {
		dists[i] = squaredL2(rawVector(d), embedding)
	}
	positions := make([]int, len(docs))
	for i := range positions {
		positions[i] = i
	}
	// docs are in insertion order, so ties keep insertion order.
	sort.SliceStable(positions, func(a, b int) bool {
		return dists[positions[a]] < dists[positions[b]]
	})
	if n := k * overFetch; n < len(positions) {
		positions = positions[:n]
	}

	records := make([]memory.Record, 0, k)
	for _, pos := range positions {
		rec := toRecord(docs[pos].Content, docs[pos].Metadata)
		if rec.Metadata.ConversationID != conversationID {
			continue
		}
		records = append(records, rec)
		if len(records) >= k {
			break
		}
	}
	return records, nil
}

func (x *Index) Len() int {
	return x.col.Count()
}

// Dump returns all documents ordered by their positional ids.
func (x *Index) Dump() []memory.Record {
	docs, err := x.all(context.Background())
	if err != nil {
		log.Printf("[CHROMEM] Dump failed: %v", err)
		return []memory.Record{}
	}

	records := make([]memory.Record, 0, len(docs))
	for _, d := range docs {
		records = append(records, toRecord(d.Content, d.Metadata))
	}
	return records
}

// Close releases resources.
func (x *Index) Close() error {
	// chromem-go writes documents as they are added, nothing to flush
	return nil
}

// all returns every document in insertion order.
// Any probe vector returns every document when nResults equals the count.
func (x *Index) all(ctx context.Context) ([]chromem.Result, error) {
	total := x.col.Count()
	if total == 0 {
		return []chromem.Result{}, nil
	}
	probe := make([]float32, x.dim)
	probe[0] = 1
	results, err := x.col.QueryEmbedding(ctx, probe, total, nil, nil)
	if err != nil {
		return nil, err
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return results, nil
}

// rawVector undoes chromem-go's normalization using the stored norm.
// Documents without a norm are taken as unit vectors.
func rawVector(r chromem.Result) []float32 {
	norm, err := strconv.ParseFloat(r.Metadata[metaNorm], 64)
	if err != nil || norm == 0 {
		return r.Embedding
	}
	out := make([]float32, len(r.Embedding))
	for i, v := range r.Embedding {
		out[i] = float32(float64(v) * norm)
	}
	return out
}

func squaredL2(a, b []float32) float64 {
	var d float64
	for i := range a {
		diff := float64(a[i]) - float64(b[i])
		d += diff * diff
	}
	return d
}

func l2Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func toRecord(content string, metadata map[string]string) memory.Record {
	return memory.Record{
		Text: content,
		Metadata: memory.Metadata{
			ConversationID: metadata[metaConversation],
			Source:         memory.Source(metadata[metaSource]),
		},
	}
}

// positionID formats a positional id that sorts lexically in insertion order.
func positionID(pos int) string {
	return fmt.Sprintf("%012d", pos)
}
