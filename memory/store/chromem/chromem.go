// Package chromem persists materialized memory records in chromem-go, a
// pure Go embedded vector database, so agents can retrieve converged
// records by semantic similarity.
//
// The store holds plain records, not CRDT state: callers materialize via
// ToRecord after merging and re-store. Embeddings are supplied by the
// caller; the store performs no inference of its own.
package chromem

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/loomhq/loom-go-sdk/memory"
)

// RecordStore wraps chromem-go. Each namespace gets its own collection
// for isolation.
type RecordStore struct {
	db          *chromem.DB
	collections map[string]*chromem.Collection
	mu          sync.RWMutex
}

// New creates an in-memory record store.
func New() (*RecordStore, error) {
	return &RecordStore{
		db:          chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
	}, nil
}

func (s *RecordStore) getOrCreateCollection(namespace string) (*chromem.Collection, error) {
	s.mu.RLock()
	col, exists := s.collections[namespace]
	s.mu.RUnlock()

	if exists {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if col, exists := s.collections[namespace]; exists {
		return col, nil
	}

	name := "ns_" + namespace
	if namespace == "" {
		name = "global"
	}

	col, err := s.db.CreateCollection(
		name,
		nil, // embeddings are supplied by the caller
		nil, // default cosine distance
	)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	s.collections[namespace] = col
	return col, nil
}

// Store saves a record with its embedding. Re-storing the same record ID
// replaces the previous version, which is how converged state supersedes
// pre-merge snapshots.
func (s *RecordStore) Store(ctx context.Context, rec *memory.Record, embedding []float32) error {
	col, err := s.getOrCreateCollection(rec.Namespace)
	if err != nil {
		return err
	}

	log.Printf("[CHROMEM] Storing record: id=%s, namespace=%s, type=%s",
		rec.ID, rec.Namespace, rec.Type)

	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	doc := chromem.Document{
		ID:        rec.ID,
		Content:   string(body),
		Embedding: embedding,
		Metadata: map[string]string{
			"namespace":    rec.Namespace,
			"type":         string(rec.Type),
			"source_agent": rec.SourceAgent,
			"content_hash": rec.ContentHash,
		},
	}

	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

// Query retrieves records in a namespace by vector similarity.
func (s *RecordStore) Query(ctx context.Context, namespace string, embedding []float32, limit int) ([]*memory.Record, error) {
	col, err := s.getOrCreateCollection(namespace)
	if err != nil {
		return nil, err
	}

	log.Printf("[CHROMEM] Querying namespace=%s, limit=%d", namespace, limit)

	where := map[string]string{"namespace": namespace}

	// chromem-go requires nResults <= collection size; retry with smaller
	// limits until the query fits.
	var results []chromem.Result
	for currentLimit := limit; currentLimit >= 1; currentLimit-- {
		results, err = col.QueryEmbedding(ctx, embedding, currentLimit, where, nil)
		if err == nil {
			break
		}
		if isInsufficientDocsError(err) {
			if currentLimit == 1 {
				log.Printf("[CHROMEM] Collection is empty")
				return nil, nil
			}
			continue
		}
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	records := make([]*memory.Record, 0, len(results))
	for i, result := range results {
		var rec memory.Record
		if err := json.Unmarshal([]byte(result.Content), &rec); err != nil {
			log.Printf("[CHROMEM] Skipping result #%d: %v", i+1, err)
			continue
		}
		records = append(records, &rec)
	}

	log.Printf("[CHROMEM] Returning %d records", len(records))
	return records, nil
}

// Close releases resources. chromem-go keeps everything in memory, so
// there is nothing to release; the method exists for store interface
// symmetry.
func (s *RecordStore) Close() error {
	return nil
}

// isInsufficientDocsError checks if the query failed because it asked for
// more results than the collection holds.
func isInsufficientDocsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}
