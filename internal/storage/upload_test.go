package storage

import "testing"

func TestUploadInitChunkFinalizeRoundTrip(t *testing.T) {
	e := NewEngine(EngineConfig{}, 1<<20, PolicyLRU)
	u := NewUploadCoordinator(e)

	uploadID := u.Init(StoreOptions{AccessPolicy: AccessPolicy{Public: true}})
	part1 := []byte("hello ")
	part2 := []byte("sovereign web")
	if err := u.Chunk(uploadID, 0, part1, computeChunkHash(part1)); err != nil {
		t.Fatalf("chunk 0: %v", err)
	}
	if err := u.Chunk(uploadID, 1, part2, computeChunkHash(part2)); err != nil {
		t.Fatalf("chunk 1: %v", err)
	}

	id, err := u.Finalize(uploadID)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	got, err := e.Retrieve(id, "")
	if err != nil {
		t.Fatalf("retrieve finalized upload: %v", err)
	}
	if string(got) != "hello sovereign web" {
		t.Fatalf("expected reassembled bytes, got %q", got)
	}

	status, err := u.Status(uploadID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.Finalized || status.ContentID != id {
		t.Fatalf("expected finalized status pointing at %s, got %+v", id, status)
	}
}

func TestUploadChunkRejectsHashMismatch(t *testing.T) {
	e := NewEngine(EngineConfig{}, 1<<20, PolicyLRU)
	u := NewUploadCoordinator(e)
	uploadID := u.Init(StoreOptions{})
	if err := u.Chunk(uploadID, 0, []byte("data"), computeChunkHash([]byte("different"))); err == nil {
		t.Fatal("expected a chunk hash mismatch to be rejected")
	}
}

func TestUploadFinalizeRejectsGapInSequence(t *testing.T) {
	e := NewEngine(EngineConfig{}, 1<<20, PolicyLRU)
	u := NewUploadCoordinator(e)
	uploadID := u.Init(StoreOptions{})
	data := []byte("chunk")
	u.Chunk(uploadID, 0, data, computeChunkHash(data))
	u.Chunk(uploadID, 2, data, computeChunkHash(data)) // gap at index 1
	if _, err := u.Finalize(uploadID); err == nil {
		t.Fatal("expected finalize to reject a gap in chunk indices")
	}
}
