package storage

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"zhtp-core/internal/zhtpcrypto"
	"zhtp-core/internal/zhtperrors"
)

var storageLogger = logrus.New()

// SetLogger overrides the package logger.
func SetLogger(l *logrus.Logger) { storageLogger = l }

const defaultChunkSize = 1 << 20 // 1 MiB, spec §4.5 "default chunk = 1 MiB"

// StoreOptions configures one store() call (spec §4.5 content store
// step 4: "Optionally compress, then optionally encrypt... choices
// recorded in metadata").
type StoreOptions struct {
	Mime         string
	Tags         []string
	Compress     bool
	Encrypt      bool
	AccessPolicy AccessPolicy
	Replication  ReplicationSpec
}

// EngineConfig bounds an Engine's behavior.
type EngineConfig struct {
	MaxContentSize int64
	ChunkSize      int64
	DedupEnabled   bool
	MasterKey      []byte // used to derive per-content encryption keys
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.ChunkSize <= 0 {
		c.ChunkSize = defaultChunkSize
	}
	if c.MaxContentSize <= 0 {
		c.MaxContentSize = 256 << 20 // 256 MiB
	}
	return c
}

// Engine is the StorageEngine component: content store, cache,
// replication, domain registry, and identity blobs, grounded on the
// teacher's Storage struct (core/storage.go) generalized from a single
// IPFS-gateway backend into the spec's full chunked content model.
type Engine struct {
	cfg EngineConfig

	mu        sync.RWMutex
	contents  map[ContentId]*ServerContent
	chunks    map[ContentId][]ContentChunk
	chunkData map[string][]byte // storage_location -> raw chunk bytes (post compress/encrypt)
	versions  map[ContentId][]ContentVersion
	dedup     map[zhtpcrypto.Hash]ContentId

	cache    *Cache
	replicas *ReplicaTracker
	domains  *DomainRegistry
	identity *IdentityBlobStore
	metrics  *engineMetrics

	stats EngineStats
}

// EngineStats counts lifetime store/retrieve activity.
type EngineStats struct {
	Stores    uint64
	Retrieves uint64
	Updates   uint64
	Deletes   uint64
	DedupHits uint64
}

// NewEngine builds an Engine with the given configuration and a cache
// of the given byte budget and eviction policy.
func NewEngine(cfg EngineConfig, cacheBytes int64, policy EvictionPolicy) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		cfg:       cfg,
		contents:  make(map[ContentId]*ServerContent),
		chunks:    make(map[ContentId][]ContentChunk),
		chunkData: make(map[string][]byte),
		versions:  make(map[ContentId][]ContentVersion),
		dedup:     make(map[zhtpcrypto.Hash]ContentId),
		cache:     NewCache(cacheBytes, policy),
		replicas:  NewReplicaTracker(),
		domains:   NewDomainRegistry(),
		identity:  NewIdentityBlobStore(),
		metrics:   newEngineMetrics(),
	}
}

// Domains exposes the domain registry.
func (e *Engine) Domains() *DomainRegistry { return e.domains }

// Identities exposes the identity blob store.
func (e *Engine) Identities() *IdentityBlobStore { return e.identity }

// Replicas exposes the replica health tracker.
func (e *Engine) Replicas() *ReplicaTracker { return e.replicas }

// CacheStats returns the content cache's lifetime statistics.
func (e *Engine) CacheStats() CacheStats { return e.cache.Stats() }

// Stats returns the engine's lifetime store/retrieve statistics.
func (e *Engine) Stats() EngineStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stats
}

// Store runs the 8-step content store algorithm (spec §4.5): size
// check, content hash, dedup, optional compress/encrypt, fixed-size
// chunking, chunk persistence, and ServerContent/ContentVersion
// recording. When opts.Replication names a policy, Store only writes a
// debug log entry; it does not select replica nodes or record replicas.
func (e *Engine) Store(data []byte, opts StoreOptions) (ContentId, error) {
	if int64(len(data)) > e.cfg.MaxContentSize {
		return "", zhtperrors.New(zhtperrors.KindCapacity, "content exceeds max_content_size")
	}

	id, digest, err := computeContentID(data)
	if err != nil {
		return "", zhtperrors.Wrap(zhtperrors.KindIO, "compute content id", err)
	}

	e.mu.Lock()
	if e.cfg.DedupEnabled {
		if existing, ok := e.dedup[digest]; ok {
			e.stats.DedupHits++
			e.mu.Unlock()
			return existing, nil
		}
	}
	e.mu.Unlock()

	payload := data
	var compInfo *CompressionInfo
	if opts.Compress {
		compInfo = &CompressionInfo{Codec: compressionCodec, OriginalSize: int64(len(payload))}
		payload = compress(payload)
	}
	var encInfo *EncryptionInfo
	if opts.Encrypt {
		sealed, info, err := encryptContent(e.cfg.MasterKey, digest, payload)
		if err != nil {
			return "", zhtperrors.Wrap(zhtperrors.KindIO, "encrypt content", err)
		}
		payload, encInfo = sealed, info
	}

	chunkList, err := e.persistChunks(id, payload, encInfo, compInfo)
	if err != nil {
		return "", err
	}

	now := time.Now()
	meta := ContentMetadata{
		Mime:        opts.Mime,
		Size:        int64(len(data)),
		CreatedAt:   now,
		Tags:        opts.Tags,
		Hash:        digest,
		Encryption:  encInfo,
		Compression: compInfo,
	}

	e.mu.Lock()
	e.contents[id] = &ServerContent{ID: id, Metadata: meta, AccessPolicy: opts.AccessPolicy}
	e.chunks[id] = chunkList
	e.versions[id] = []ContentVersion{{
		VersionID:     string(id) + "-v1",
		VersionNumber: 1,
		CreatedAt:     now,
		ContentHash:   digest,
	}}
	if e.cfg.DedupEnabled {
		e.dedup[digest] = id
	}
	e.stats.Stores++
	e.mu.Unlock()

	if opts.Replication.Policy != 0 {
		storageLogger.WithFields(logrus.Fields{"content_id": id, "policy": opts.Replication.Policy}).Debug("storage: replication enqueued")
	}

	return id, nil
}

// persistChunks splits payload into fixed-size slices and records each
// as a ContentChunk (spec §4.5 step 5-6).
func (e *Engine) persistChunks(id ContentId, payload []byte, enc *EncryptionInfo, comp *CompressionInfo) ([]ContentChunk, error) {
	var out []ContentChunk
	chunkSize := e.cfg.ChunkSize
	for seq, off := 0, int64(0); off < int64(len(payload)); seq, off = seq+1, off+chunkSize {
		end := off + chunkSize
		if end > int64(len(payload)) {
			end = int64(len(payload))
		}
		slice := payload[off:end]
		location := fmt.Sprintf("%s/%d", id, seq)
		e.mu.Lock()
		e.chunkData[location] = append([]byte(nil), slice...)
		e.mu.Unlock()
		out = append(out, ContentChunk{
			ID:              location,
			Sequence:        seq,
			Size:            int64(len(slice)),
			Hash:            computeChunkHash(slice),
			StorageLocation: location,
			Encryption:      enc,
			Compression:     comp,
		})
	}
	if len(out) == 0 {
		// zero-byte content still gets one empty chunk so assembly logic
		// never special-cases an empty chunk list.
		location := fmt.Sprintf("%s/0", id)
		e.mu.Lock()
		e.chunkData[location] = nil
		e.mu.Unlock()
		out = append(out, ContentChunk{ID: location, Sequence: 0, StorageLocation: location, Hash: computeChunkHash(nil), Encryption: enc, Compression: comp})
	}
	return out, nil
}

// assemble reassembles payload bytes from id's ordered chunks, failing
// if any chunk is missing or its hash mismatches (spec §4.5 "Chunking &
// assembly").
func (e *Engine) assemble(id ContentId) ([]byte, error) {
	e.mu.RLock()
	chunkList := append([]ContentChunk(nil), e.chunks[id]...)
	e.mu.RUnlock()

	var out []byte
	for _, c := range chunkList {
		e.mu.RLock()
		data, ok := e.chunkData[c.StorageLocation]
		e.mu.RUnlock()
		if !ok {
			return nil, zhtperrors.New(zhtperrors.KindConsistency, "missing chunk during assembly")
		}
		if computeChunkHash(data) != c.Hash {
			return nil, zhtperrors.New(zhtperrors.KindConsistency, "chunk hash mismatch during assembly")
		}
		out = append(out, data...)
	}
	return out, nil
}

// Retrieve runs the 2-step retrieve algorithm (spec §4.5): cache hit
// short-circuit, else chunk assembly + decrypt + decompress + cache
// fill.
func (e *Engine) Retrieve(id ContentId, requestDID string) ([]byte, error) {
	e.mu.RLock()
	content, ok := e.contents[id]
	e.mu.RUnlock()
	if !ok {
		return nil, zhtperrors.New(zhtperrors.KindConsistency, "content not found")
	}
	if !content.AccessPolicy.allows(requestDID) {
		return nil, zhtperrors.New(zhtperrors.KindAuth, "access policy denies requester")
	}

	if cached, ok := e.cache.Get(string(id)); ok {
		e.mu.Lock()
		e.stats.Retrieves++
		e.mu.Unlock()
		return cached, nil
	}

	payload, err := e.assemble(id)
	if err != nil {
		return nil, err
	}

	if content.Metadata.Encryption != nil {
		payload, err = decryptContent(e.cfg.MasterKey, content.Metadata.Hash, payload)
		if err != nil {
			return nil, zhtperrors.Wrap(zhtperrors.KindAuth, "decrypt content", err)
		}
	}
	if content.Metadata.Compression != nil {
		payload, err = decompress(payload)
		if err != nil {
			return nil, zhtperrors.Wrap(zhtperrors.KindIO, "decompress content", err)
		}
	}

	e.cache.Put(string(id), payload, TierHot, 0)
	e.mu.Lock()
	e.stats.Retrieves++
	e.mu.Unlock()
	return payload, nil
}

// Update replaces id's bytes in place: content_hash changes but the
// ContentId (the object's stable reference) does not, a new chunk set
// and ContentVersion are recorded, and the previous version's record is
// retained (spec §4.5 "update(content_id, new_bytes)").
func (e *Engine) Update(id ContentId, newBytes []byte, creator, description string, opts StoreOptions) (ContentVersion, error) {
	e.mu.RLock()
	content, ok := e.contents[id]
	oldChunks := e.chunks[id]
	prevVersions := e.versions[id]
	e.mu.RUnlock()
	if !ok {
		return ContentVersion{}, zhtperrors.New(zhtperrors.KindConsistency, "content not found")
	}
	if int64(len(newBytes)) > e.cfg.MaxContentSize {
		return ContentVersion{}, zhtperrors.New(zhtperrors.KindCapacity, "content exceeds max_content_size")
	}

	digest := zhtpcrypto.Sum(newBytes)

	payload := newBytes
	var compInfo *CompressionInfo
	if opts.Compress {
		compInfo = &CompressionInfo{Codec: compressionCodec, OriginalSize: int64(len(payload))}
		payload = compress(payload)
	}
	var encInfo *EncryptionInfo
	if opts.Encrypt {
		sealed, info, err := encryptContent(e.cfg.MasterKey, digest, payload)
		if err != nil {
			return ContentVersion{}, zhtperrors.Wrap(zhtperrors.KindIO, "encrypt content", err)
		}
		payload, encInfo = sealed, info
	}

	newChunks, err := e.persistChunks(id, payload, encInfo, compInfo)
	if err != nil {
		return ContentVersion{}, err
	}

	nextNumber := len(prevVersions) + 1
	version := ContentVersion{
		VersionID:     fmt.Sprintf("%s-v%d", id, nextNumber),
		VersionNumber: nextNumber,
		Creator:       creator,
		CreatedAt:     time.Now(),
		ContentHash:   digest,
		Description:   description,
	}

	e.mu.Lock()
	for _, c := range oldChunks {
		delete(e.chunkData, c.StorageLocation)
	}
	e.chunks[id] = newChunks
	e.versions[id] = append(e.versions[id], version)
	content.Metadata.Hash = digest
	content.Metadata.Size = int64(len(newBytes))
	content.Metadata.Encryption = encInfo
	content.Metadata.Compression = compInfo
	e.stats.Updates++
	e.mu.Unlock()

	e.cache.Remove(string(id))
	return version, nil
}

// Delete removes id's content, chunks, versions, replica records,
// dedup entry, and cache entry (spec §4.5 "delete(content_id)").
func (e *Engine) Delete(id ContentId) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	content, ok := e.contents[id]
	if !ok {
		return zhtperrors.New(zhtperrors.KindConsistency, "content not found")
	}
	for _, c := range e.chunks[id] {
		delete(e.chunkData, c.StorageLocation)
	}
	delete(e.chunks, id)
	delete(e.versions, id)
	delete(e.contents, id)
	if e.cfg.DedupEnabled {
		delete(e.dedup, content.Metadata.Hash)
	}
	e.replicas.mu.Lock()
	delete(e.replicas.replicas, id)
	e.replicas.mu.Unlock()
	e.stats.Deletes++
	e.cache.Remove(string(id))
	return nil
}

// Versions returns id's retained version history, oldest first.
func (e *Engine) Versions(id ContentId) []ContentVersion {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]ContentVersion, len(e.versions[id]))
	copy(out, e.versions[id])
	return out
}

// Chunks returns id's ordered chunk manifest.
func (e *Engine) Chunks(id ContentId) []ContentChunk {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]ContentChunk, len(e.chunks[id]))
	copy(out, e.chunks[id])
	return out
}
