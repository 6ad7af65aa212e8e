// BadgerEngine provides persistent disk-based storage using BadgerDB.
package storage

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
)

// Key prefixes for BadgerDB storage organization
// Using single-byte prefixes for efficiency
const (
	prefixNode          = byte(0x01) // nodes:nodeID -> Node
	prefixEdge          = byte(0x02) // edges:edgeID -> Edge
	prefixLabelIndex    = byte(0x03) // label:labelName:nodeID -> []byte{}
	prefixOutgoingIndex = byte(0x04) // outgoing:nodeID:edgeID -> []byte{}
	prefixIncomingIndex = byte(0x05) // incoming:nodeID:edgeID -> []byte{}
	prefixEdgeTypeIndex = byte(0x06) // edgetype:type:edgeID -> []byte{}
)

// BadgerEngine provides persistent storage using BadgerDB.
//
// Key Structure:
//   - Nodes: 0x01 + nodeID -> gob(Node)
//   - Edges: 0x02 + edgeID -> gob(Edge)
//   - Label Index: 0x03 + label + 0x00 + nodeID -> empty
//   - Outgoing Index: 0x04 + nodeID + 0x00 + edgeID -> empty
//   - Incoming Index: 0x05 + nodeID + 0x00 + edgeID -> empty
//   - Edge Type Index: 0x06 + type + 0x00 + edgeID -> empty
//
// Scans (ScanNodes, ScanEdges) hold a read transaction until the returned
// iterator is closed.
//
// Example:
//
//	engine, err := storage.NewBadgerEngine("/path/to/data")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer engine.Close()
type BadgerEngine struct {
	db       *badger.DB
	mu       sync.RWMutex
	closed   bool
	inMemory bool

	// Cached counts for O(1) stats lookups (updated on create/delete)
	nodeCount atomic.Int64
	edgeCount atomic.Int64
}

// BadgerOptions configures the BadgerDB engine.
type BadgerOptions struct {
	// DataDir is the directory for storing data files.
	// Required unless InMemory is set.
	DataDir string

	// InMemory runs BadgerDB in memory-only mode.
	// Useful for testing. Data is not persisted.
	InMemory bool

	// SyncWrites forces fsync after each write.
	SyncWrites bool

	// Logger for BadgerDB internal logging.
	// If nil, BadgerDB logging is silenced.
	Logger badger.Logger

	// LowMemory enables memory-constrained settings.
	LowMemory bool
}

// NewBadgerEngine creates a new persistent storage engine with default settings.
//
// Thread Safety:
//
//	Safe for concurrent use from multiple goroutines.
func NewBadgerEngine(dataDir string) (*BadgerEngine, error) {
	return NewBadgerEngineWithOptions(BadgerOptions{
		DataDir: dataDir,
	})
}

// NewBadgerEngineWithOptions creates a BadgerEngine with custom configuration.
func NewBadgerEngineWithOptions(opts BadgerOptions) (*BadgerEngine, error) {
	badgerOpts := badger.DefaultOptions(opts.DataDir)

	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true).WithDir("").WithValueDir("")
	}

	if opts.SyncWrites {
		badgerOpts = badgerOpts.WithSyncWrites(true)
	}

	// nil silences badger's default logger
	badgerOpts = badgerOpts.WithLogger(opts.Logger)

	if opts.LowMemory {
		badgerOpts = badgerOpts.
			WithMemTableSize(8 << 20).      // 8MB memtable
			WithValueLogFileSize(32 << 20). // 32MB value log
			WithNumMemtables(1).
			WithNumLevelZeroTables(1).
			WithNumLevelZeroTablesStall(2).
			WithBlockCacheSize(8 << 20).
			WithIndexCacheSize(4 << 20)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	engine := &BadgerEngine{
		db:       db,
		inMemory: opts.InMemory,
	}

	if err := engine.initializeCounts(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize counts: %w", err)
	}

	return engine, nil
}

// NewBadgerEngineInMemory creates an in-memory BadgerDB for testing.
func NewBadgerEngineInMemory() (*BadgerEngine, error) {
	return NewBadgerEngineWithOptions(BadgerOptions{
		InMemory: true,
	})
}

// IsInMemory returns true if the engine is running in memory-only mode.
func (b *BadgerEngine) IsInMemory() bool {
	return b.inMemory
}

// ============================================================================
// Key encoding helpers
// ============================================================================

func nodeKey(id NodeID) []byte {
	return append([]byte{prefixNode}, []byte(id)...)
}

func edgeKey(id EdgeID) []byte {
	return append([]byte{prefixEdge}, []byte(id)...)
}

// indexKey builds prefix + part + 0x00 + id.
func indexKey(prefix byte, part, id string) []byte {
	key := make([]byte, 0, 1+len(part)+1+len(id))
	key = append(key, prefix)
	key = append(key, part...)
	key = append(key, 0x00)
	key = append(key, id...)
	return key
}

// indexPrefix builds prefix + part + 0x00.
func indexPrefix(prefix byte, part string) []byte {
	key := make([]byte, 0, 1+len(part)+1)
	key = append(key, prefix)
	key = append(key, part...)
	key = append(key, 0x00)
	return key
}

// Labels and edge types are matched case-insensitively in the indexes;
// exact matching is re-checked on the decoded value.
func labelIndexKey(label string, nodeID NodeID) []byte {
	return indexKey(prefixLabelIndex, strings.ToLower(label), string(nodeID))
}

func labelIndexPrefix(label string) []byte {
	return indexPrefix(prefixLabelIndex, strings.ToLower(label))
}

func outgoingIndexKey(nodeID NodeID, edgeID EdgeID) []byte {
	return indexKey(prefixOutgoingIndex, string(nodeID), string(edgeID))
}

func outgoingIndexPrefix(nodeID NodeID) []byte {
	return indexPrefix(prefixOutgoingIndex, string(nodeID))
}

func incomingIndexKey(nodeID NodeID, edgeID EdgeID) []byte {
	return indexKey(prefixIncomingIndex, string(nodeID), string(edgeID))
}

func incomingIndexPrefix(nodeID NodeID) []byte {
	return indexPrefix(prefixIncomingIndex, string(nodeID))
}

func edgeTypeIndexKey(edgeType string, edgeID EdgeID) []byte {
	return indexKey(prefixEdgeTypeIndex, strings.ToLower(edgeType), string(edgeID))
}

func edgeTypeIndexPrefix(edgeType string) []byte {
	return indexPrefix(prefixEdgeTypeIndex, strings.ToLower(edgeType))
}

// idFromIndexKey extracts the trailing id from prefix + part + 0x00 + id.
func idFromIndexKey(key []byte, prefixLen int) string {
	if prefixLen >= len(key) {
		return ""
	}
	return string(key[prefixLen:])
}

// ============================================================================
// Serialization helpers
// ============================================================================

// encodeNode serializes a Node using gob (preserves Go types like int64).
func encodeNode(n *Node) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(n); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeNode(data []byte) (*Node, error) {
	var n Node
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&n); err != nil {
		return nil, err
	}
	if n.Properties == nil {
		n.Properties = make(map[string]any)
	}
	return &n, nil
}

func encodeEdge(e *Edge) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeEdge(data []byte) (*Edge, error) {
	var e Edge
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&e); err != nil {
		return nil, err
	}
	if e.Properties == nil {
		e.Properties = make(map[string]any)
	}
	return &e, nil
}

// ============================================================================
// Stats and lifecycle
// ============================================================================

// initializeCounts scans existing data once so NodeCount/EdgeCount are O(1).
func (b *BadgerEngine) initializeCounts() error {
	var nodes, edges int64
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badgerIterOptsKeyOnly([]byte{prefixNode}))
		for it.Rewind(); it.Valid(); it.Next() {
			nodes++
		}
		it.Close()

		it = txn.NewIterator(badgerIterOptsKeyOnly([]byte{prefixEdge}))
		for it.Rewind(); it.Valid(); it.Next() {
			edges++
		}
		it.Close()
		return nil
	})
	if err != nil {
		return err
	}
	b.nodeCount.Store(nodes)
	b.edgeCount.Store(edges)
	return nil
}

// NodeCount returns the number of nodes.
func (b *BadgerEngine) NodeCount() (int64, error) {
	if err := b.ensureOpen(); err != nil {
		return 0, err
	}
	return b.nodeCount.Load(), nil
}

// EdgeCount returns the number of edges.
func (b *BadgerEngine) EdgeCount() (int64, error) {
	if err := b.ensureOpen(); err != nil {
		return 0, err
	}
	return b.edgeCount.Load(), nil
}

// Close closes the underlying database.
func (b *BadgerEngine) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.db.Close()
}

// Verify BadgerEngine implements Engine interface
var _ Engine = (*BadgerEngine)(nil)
