package transport

import (
	"sync"
	"time"

	"zhtp-core/internal/zhtperrors"
)

// partialMessage accumulates fragments for one request_id until all
// arrive or the reassembly timeout elapses (spec §4.3 "Fragment
// reassembly").
type partialMessage struct {
	total    uint16
	parts    map[uint16][]byte
	started  time.Time
}

// reassemblyStore tracks in-flight fragmented messages across all
// small-MTU transports (BLE).
type reassemblyStore struct {
	mu   sync.Mutex
	msgs map[[16]byte]*partialMessage
}

func newReassemblyStore() *reassemblyStore {
	return &reassemblyStore{msgs: make(map[[16]byte]*partialMessage)}
}

// Ingest adds one fragment, returning the reassembled payload once every
// index up to Total has arrived. Fragments for a request_id older than
// the 30s reassembly timeout are discarded and restart the buffer.
func (s *reassemblyStore) Ingest(f Fragment) ([]byte, bool, error) {
	if f.Header.Total == 0 || f.Header.Index >= f.Header.Total {
		return nil, false, zhtperrors.New(zhtperrors.KindProtocol, "fragment: invalid index/total")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pm, ok := s.msgs[f.Header.RequestID]
	if ok && time.Since(pm.started) > fragmentReassemblyTimeout {
		delete(s.msgs, f.Header.RequestID)
		ok = false
	}
	if !ok {
		pm = &partialMessage{total: f.Header.Total, parts: make(map[uint16][]byte), started: time.Now()}
		s.msgs[f.Header.RequestID] = pm
	}
	if f.Header.Total != pm.total {
		return nil, false, zhtperrors.New(zhtperrors.KindProtocol, "fragment: total mismatch across fragments")
	}
	pm.parts[f.Header.Index] = append([]byte(nil), f.Body...)

	if uint16(len(pm.parts)) < pm.total {
		return nil, false, nil
	}

	var out []byte
	for i := uint16(0); i < pm.total; i++ {
		out = append(out, pm.parts[i]...)
	}
	delete(s.msgs, f.Header.RequestID)
	return out, true, nil
}

// Sweep discards any in-flight reassembly buffer older than the 30s
// timeout ("Partial reassembly is discarded").
func (s *reassemblyStore) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-fragmentReassemblyTimeout)
	for id, pm := range s.msgs {
		if pm.started.Before(cutoff) {
			delete(s.msgs, id)
		}
	}
}

// Split breaks a payload into fragments of at most maxBody bytes,
// tagged with requestID, for transports with a small MTU.
func Split(requestID [16]byte, payload []byte, maxBody int) []Fragment {
	if maxBody <= 0 {
		maxBody = 20
	}
	total := (len(payload) + maxBody - 1) / maxBody
	if total == 0 {
		total = 1
	}
	frags := make([]Fragment, 0, total)
	for i := 0; i < total; i++ {
		start := i * maxBody
		end := start + maxBody
		if end > len(payload) {
			end = len(payload)
		}
		body := payload[start:end]
		frags = append(frags, Fragment{
			Header: FragmentHeader{RequestID: requestID, Index: uint16(i), Total: uint16(total), PayloadLen: uint32(len(body))},
			Body:   body,
		})
	}
	return frags
}
