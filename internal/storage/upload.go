package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"zhtp-core/internal/zhtpcrypto"
	"zhtp-core/internal/zhtperrors"
)

// UploadStatus reports a chunked upload's progress (spec §6.2 "GET
// .../upload/{id}/status").
type UploadStatus struct {
	UploadID       string
	ReceivedChunks int
	TotalBytes     int64
	Finalized      bool
	ContentID      ContentId
}

type pendingUpload struct {
	chunks    map[int][]byte
	startedAt time.Time
	opts      StoreOptions
	finalized bool
	contentID ContentId
}

// UploadCoordinator tracks in-flight chunked uploads keyed by a
// google/uuid upload_id, reassembling the full object on finalize
// (spec §6.2 upload/init, upload/{id}/chunk/{i}, upload/{id}/finalize,
// upload/{id}/status).
type UploadCoordinator struct {
	mu      sync.Mutex
	engine  *Engine
	uploads map[string]*pendingUpload
}

// NewUploadCoordinator builds a coordinator storing finalized uploads
// into engine.
func NewUploadCoordinator(engine *Engine) *UploadCoordinator {
	return &UploadCoordinator{engine: engine, uploads: make(map[string]*pendingUpload)}
}

// Init starts a new chunked upload, returning its upload_id.
func (u *UploadCoordinator) Init(opts StoreOptions) string {
	id := uuid.NewString()
	u.mu.Lock()
	defer u.mu.Unlock()
	u.uploads[id] = &pendingUpload{chunks: make(map[int][]byte), startedAt: time.Now(), opts: opts}
	return id
}

// Chunk records one fragment of the upload at the given 0-based index,
// verifying it against the caller-supplied hash.
func (u *UploadCoordinator) Chunk(uploadID string, index int, data []byte, expectedHash zhtpcrypto.Hash) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	up, ok := u.uploads[uploadID]
	if !ok {
		return zhtperrors.New(zhtperrors.KindConsistency, "unknown upload_id")
	}
	if up.finalized {
		return zhtperrors.New(zhtperrors.KindConsistency, "upload already finalized")
	}
	if computeChunkHash(data) != expectedHash {
		return zhtperrors.New(zhtperrors.KindProtocol, "chunk hash mismatch")
	}
	up.chunks[index] = append([]byte(nil), data...)
	return nil
}

// Finalize reassembles all received chunks in order and stores the
// result, returning the resulting ContentId.
func (u *UploadCoordinator) Finalize(uploadID string) (ContentId, error) {
	u.mu.Lock()
	up, ok := u.uploads[uploadID]
	if !ok {
		u.mu.Unlock()
		return "", zhtperrors.New(zhtperrors.KindConsistency, "unknown upload_id")
	}
	if up.finalized {
		id := up.contentID
		u.mu.Unlock()
		return id, nil
	}
	indices := make([]int, 0, len(up.chunks))
	for i := range up.chunks {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	for i, idx := range indices {
		if idx != i {
			u.mu.Unlock()
			return "", zhtperrors.New(zhtperrors.KindConsistency, "upload has a gap in chunk sequence")
		}
	}
	var full []byte
	for _, idx := range indices {
		full = append(full, up.chunks[idx]...)
	}
	opts := up.opts
	u.mu.Unlock()

	id, err := u.engine.Store(full, opts)
	if err != nil {
		return "", err
	}

	u.mu.Lock()
	up.finalized = true
	up.contentID = id
	u.mu.Unlock()
	return id, nil
}

// Status reports uploadID's current progress.
func (u *UploadCoordinator) Status(uploadID string) (UploadStatus, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	up, ok := u.uploads[uploadID]
	if !ok {
		return UploadStatus{}, zhtperrors.New(zhtperrors.KindConsistency, "unknown upload_id")
	}
	var total int64
	for _, c := range up.chunks {
		total += int64(len(c))
	}
	return UploadStatus{
		UploadID:       uploadID,
		ReceivedChunks: len(up.chunks),
		TotalBytes:     total,
		Finalized:      up.finalized,
		ContentID:      up.contentID,
	}, nil
}
