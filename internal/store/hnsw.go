package store

import (
	"context"
	"fmt"
	"iter"
	"math"
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

// VectorStoreConfig configures the HNSW index.
type VectorStoreConfig struct {
	Dimensions int
	M          int // max connections per node
	EfSearch   int // search candidate list size

	// OversampleFactor multiplies the requested limit when a namespace
	// filter is applied after the graph search.
	OversampleFactor int
}

// DefaultVectorStoreConfig returns defaults for the given dimension.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions:       dimensions,
		M:                16,
		EfSearch:         64,
		OversampleFactor: 4,
	}
}

// HNSWStore implements VectorStore on coder/hnsw with cosine distance. The
// graph is rebuilt from the persisted vectors table on open, so it needs no
// file of its own.
type HNSWStore struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorStoreConfig

	idMap     map[string]uint64 // chunk ID -> graph key
	keyMap    map[uint64]string // graph key -> chunk ID
	namespace map[string]string // chunk ID -> namespace
	nextKey   uint64

	closed bool
}

var _ VectorStore = (*HNSWStore)(nil)

// NewHNSWStore creates an empty store.
func NewHNSWStore(cfg VectorStoreConfig) (*HNSWStore, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("invalid vector dimensions: %d", cfg.Dimensions)
	}
	def := DefaultVectorStoreConfig(cfg.Dimensions)
	if cfg.M == 0 {
		cfg.M = def.M
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = def.EfSearch
	}
	if cfg.OversampleFactor <= 0 {
		cfg.OversampleFactor = def.OversampleFactor
	}

	return &HNSWStore{
		graph:     newGraph(cfg),
		config:    cfg,
		idMap:     make(map[string]uint64),
		keyMap:    make(map[uint64]string),
		namespace: make(map[string]string),
	}, nil
}

func newGraph(cfg VectorStoreConfig) *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = cfg.M
	g.EfSearch = cfg.EfSearch
	g.Ml = 0.25
	return g
}

// Load inserts every stored vector. Vectors of the wrong dimension are
// reported as ErrDimensionMismatch so the caller can trigger a rebuild.
func (s *HNSWStore) Load(vectors iter.Seq2[StoredVector, error]) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, fmt.Errorf("store is closed")
	}

	n := 0
	for v, err := range vectors {
		if err != nil {
			return n, err
		}
		if len(v.Vector) != s.config.Dimensions {
			return n, ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(v.Vector)}
		}
		s.addLocked(v.ChunkID, v.Vector, v.Namespace)
		n++
	}
	return n, nil
}

// Upsert inserts or replaces vectors in namespace.
func (s *HNSWStore) Upsert(ctx context.Context, ids []string, vectors [][]float32, namespace string) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}
	if err := s.checkDims(vectors); err != nil {
		return err
	}
	for i, id := range ids {
		s.addLocked(id, vectors[i], namespace)
	}
	return nil
}

// Apply removes then adds the vectors of a replacement under one lock, so a
// concurrent Search sees either the old or the new set.
func (s *HNSWStore) Apply(ctx context.Context, r *Replacement) error {
	if r == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}
	if r.Vectors != nil {
		if len(r.Vectors) != len(r.Added) {
			return fmt.Errorf("replacement vectors and chunks length mismatch: %d vs %d", len(r.Vectors), len(r.Added))
		}
		if err := s.checkDims(r.Vectors); err != nil {
			return err
		}
	}

	for _, id := range r.RemovedIDs {
		s.deleteLocked(id)
	}
	if r.Vectors == nil {
		return nil
	}
	for i, c := range r.Added {
		ns := c.Namespace
		if ns == "" {
			ns = r.Namespace
		}
		s.addLocked(c.ID, r.Vectors[i], ns)
	}
	return nil
}

func (s *HNSWStore) checkDims(vectors [][]float32) error {
	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(v)}
		}
	}
	return nil
}

// addLocked inserts under a fresh key. An existing node for id is orphaned
// rather than deleted from the graph; coder/hnsw misbehaves when the last
// node of a layer is removed.
func (s *HNSWStore) addLocked(id string, vector []float32, namespace string) {
	s.deleteLocked(id)

	key := s.nextKey
	s.nextKey++

	vec := make([]float32, len(vector))
	copy(vec, vector)
	normalizeVectorInPlace(vec)

	s.graph.Add(hnsw.MakeNode(key, vec))
	s.idMap[id] = key
	s.keyMap[key] = id
	s.namespace[id] = namespace
}

func (s *HNSWStore) deleteLocked(id string) {
	if key, ok := s.idMap[id]; ok {
		delete(s.keyMap, key)
		delete(s.idMap, id)
		delete(s.namespace, id)
	}
}

// Delete removes vectors by ID (lazy).
func (s *HNSWStore) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}
	for _, id := range ids {
		s.deleteLocked(id)
	}
	return nil
}

// Search returns up to limit nearest live vectors in namespace. The graph is
// asked for limit*OversampleFactor candidates, doubling until enough survive
// the namespace filter or the whole graph has been considered.
func (s *HNSWStore) Search(ctx context.Context, query []float32, namespace string, limit int) ([]*VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	if len(query) != s.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(query)}
	}

	total := s.graph.Len()
	if total == 0 || limit <= 0 || len(s.idMap) == 0 {
		return []*VectorResult{}, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	normalizeVectorInPlace(q)

	k := limit * s.config.OversampleFactor
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		k = min(k, total)
		results := s.collect(q, namespace, k, limit)
		if len(results) >= limit || k >= total {
			return results, nil
		}
		k *= 2
	}
}

func (s *HNSWStore) collect(q []float32, namespace string, k, limit int) []*VectorResult {
	nodes := s.graph.Search(q, k)
	results := make([]*VectorResult, 0, limit)
	for _, node := range nodes {
		id, ok := s.keyMap[node.Key]
		if !ok {
			continue // orphaned
		}
		if namespace != "" && s.namespace[id] != namespace {
			continue
		}
		d := s.graph.Distance(q, node.Value)
		results = append(results, &VectorResult{ID: id, Distance: d, Score: distanceToScore(d)})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// AllIDs returns every live vector ID.
func (s *HNSWStore) AllIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.idMap))
	for id := range s.idMap {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Contains reports whether id has a live vector.
func (s *HNSWStore) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.idMap[id]
	return ok
}

// Count returns the number of live vectors.
func (s *HNSWStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.idMap)
}

// Dimensions returns the configured vector dimension.
func (s *HNSWStore) Dimensions() int { return s.config.Dimensions }

// HNSWStats reports live and orphaned graph nodes.
type HNSWStats struct {
	ValidIDs   int
	GraphNodes int
	Orphans    int
}

// Stats returns node counts.
func (s *HNSWStore) Stats() HNSWStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return HNSWStats{}
	}
	nodes := s.graph.Len()
	return HNSWStats{ValidIDs: len(s.idMap), GraphNodes: nodes, Orphans: nodes - len(s.idMap)}
}

// Compact rebuilds the graph from live nodes, dropping orphans.
func (s *HNSWStore) Compact() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, fmt.Errorf("store is closed")
	}

	before := s.graph.Len()
	graph := newGraph(s.config)
	idMap := make(map[string]uint64, len(s.idMap))
	keyMap := make(map[uint64]string, len(s.idMap))

	ids := make([]string, 0, len(s.idMap))
	for id := range s.idMap {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var next uint64
	for _, id := range ids {
		vec, ok := s.graph.Lookup(s.idMap[id])
		if !ok {
			delete(s.namespace, id)
			continue
		}
		graph.Add(hnsw.MakeNode(next, vec))
		idMap[id] = next
		keyMap[next] = id
		next++
	}

	s.graph, s.idMap, s.keyMap, s.nextKey = graph, idMap, keyMap, next
	return before - graph.Len(), nil
}

// Close releases the graph.
func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = newGraph(s.config)
	s.idMap = map[string]uint64{}
	s.keyMap = map[uint64]string{}
	s.namespace = map[string]string{}
	return nil
}

// normalizeVectorInPlace scales v to unit length.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

// distanceToScore maps cosine distance (0..2) to similarity (1..0).
func distanceToScore(distance float32) float32 {
	return 1.0 - distance/2.0
}
