package relay

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/halide-works/aperture-drop/internal/adapter"
)

// TxState is the lifecycle state of a submitted relay operation.
type TxState string

const (
	// StatePending means the operation is submitted and awaiting finality.
	StatePending TxState = "pending"
	// StateConfirmed means the operation reached finality.
	StateConfirmed TxState = "confirmed"
	// StateFailed means the operation terminally failed.
	StateFailed TxState = "failed"
)

// TxStatus is the observable status of a relay operation, keyed by handle.
// Once a submission exists there is no cancellation; callers poll until a
// terminal state appears.
type TxStatus struct {
	Handle    string      `json:"handle"`
	State     TxState     `json:"state"`
	TxHash    common.Hash `json:"txHash"`
	Error     string      `json:"error,omitempty"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// statusRetention bounds how long a status stays queryable after its last
// update. Stale entries are swept on the next write.
const statusRetention = time.Hour

// StatusStore is an in-memory handle-to-status map written by the executor
// and its background confirmation tasks, polled by the tx-status endpoint.
// It is ephemeral by design; a restart loses only progress reporting, never
// ledger state.
type StatusStore struct {
	mu       sync.RWMutex
	statuses map[string]TxStatus
	clock    adapter.Clock
}

// NewStatusStore creates an empty status store.
func NewStatusStore(clock adapter.Clock) *StatusStore {
	return &StatusStore{
		statuses: make(map[string]TxStatus),
		clock:    clock,
	}
}

// Set records the state for a handle and sweeps entries past retention.
func (s *StatusStore) Set(handle string, state TxState, txHash common.Hash, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	for h, st := range s.statuses {
		if now.Sub(st.UpdatedAt) > statusRetention {
			delete(s.statuses, h)
		}
	}

	s.statuses[handle] = TxStatus{
		Handle:    handle,
		State:     state,
		TxHash:    txHash,
		Error:     errMsg,
		UpdatedAt: now,
	}
}

// Get returns the status for a handle.
func (s *StatusStore) Get(handle string) (TxStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.statuses[handle]
	return st, ok
}
