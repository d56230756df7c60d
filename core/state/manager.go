package state

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/MRAlirad/ccip-rebase-token/storage"
)

var (
	kvPrefix   = []byte("kv/")
	rolePrefix = []byte("role/")

	// ErrClosed is returned once a manager has been committed or discarded.
	ErrClosed = errors.New("state: manager already committed or discarded")
)

type pendingWrite struct {
	value   []byte
	deleted bool
}

// Manager provides RLP-encoded key/value access on top of a storage.Database.
// Writes are staged in memory and only reach the database on Commit, which
// applies them as one atomic batch. Reads observe staged writes first.
//
// A Manager is scoped to one logical operation and is not safe for
// concurrent use across operations.
type Manager struct {
	db      storage.Database
	mu      sync.Mutex
	pending map[string]pendingWrite
	order   []string
	closed  bool
}

// NewManager creates a state manager staging writes against db.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db, pending: make(map[string]pendingWrite)}
}

func kvKey(key []byte) []byte {
	buf := make([]byte, len(kvPrefix)+len(key))
	copy(buf, kvPrefix)
	copy(buf[len(kvPrefix):], key)
	return buf
}

func roleKey(role string) []byte {
	hashed := ethcrypto.Keccak256([]byte(role))
	buf := make([]byte, len(rolePrefix)+len(hashed))
	copy(buf, rolePrefix)
	copy(buf[len(rolePrefix):], hashed)
	return buf
}

func (m *Manager) stage(key []byte, value []byte, deleted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	k := string(key)
	if _, ok := m.pending[k]; !ok {
		m.order = append(m.order, k)
	}
	m.pending[k] = pendingWrite{value: append([]byte(nil), value...), deleted: deleted}
	return nil
}

func (m *Manager) read(key []byte) ([]byte, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	write, ok := m.pending[string(key)]
	m.mu.Unlock()
	if ok {
		if write.deleted {
			return nil, nil
		}
		return write.value, nil
	}
	data, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return data, err
}

// KVPut stages the RLP encoding of value under key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.stage(kvKey(key), encoded, false)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.read(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete stages the removal of key.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return m.stage(kvKey(key), nil, true)
}

func (m *Manager) loadRole(role string) ([][]byte, error) {
	data, err := m.read(roleKey(role))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return [][]byte{}, nil
	}
	var members [][]byte
	if err := rlp.DecodeBytes(data, &members); err != nil {
		return nil, err
	}
	return members, nil
}

func (m *Manager) writeRole(role string, members [][]byte) error {
	sort.Slice(members, func(i, j int) bool {
		return bytes.Compare(members[i], members[j]) < 0
	})
	encoded, err := rlp.EncodeToBytes(members)
	if err != nil {
		return err
	}
	return m.stage(roleKey(role), encoded, false)
}

// SetRole adds addr to the member set of role. Adding an existing member is a
// no-op.
func (m *Manager) SetRole(role string, addr []byte) error {
	trimmed := strings.TrimSpace(role)
	if trimmed == "" {
		return fmt.Errorf("role must not be empty")
	}
	if len(addr) == 0 {
		return fmt.Errorf("address must not be empty")
	}
	members, err := m.loadRole(trimmed)
	if err != nil {
		return err
	}
	for _, existing := range members {
		if bytes.Equal(existing, addr) {
			return nil
		}
	}
	members = append(members, append([]byte(nil), addr...))
	return m.writeRole(trimmed, members)
}

// RemoveRole drops addr from the member set of role.
func (m *Manager) RemoveRole(role string, addr []byte) error {
	trimmed := strings.TrimSpace(role)
	if trimmed == "" {
		return fmt.Errorf("role must not be empty")
	}
	members, err := m.loadRole(trimmed)
	if err != nil {
		return err
	}
	filtered := members[:0]
	for _, existing := range members {
		if !bytes.Equal(existing, addr) {
			filtered = append(filtered, existing)
		}
	}
	if len(filtered) == len(members) {
		return nil
	}
	return m.writeRole(trimmed, filtered)
}

// RoleMembers returns all addresses assigned to the provided role.
func (m *Manager) RoleMembers(role string) ([][]byte, error) {
	return m.loadRole(strings.TrimSpace(role))
}

// HasRole reports whether the provided address is associated with the
// specified role. Errors while reading the underlying state result in a false
// return, matching the best-effort semantics required by the callers.
func (m *Manager) HasRole(role string, addr []byte) bool {
	if len(addr) == 0 {
		return false
	}
	members, err := m.loadRole(strings.TrimSpace(role))
	if err != nil {
		return false
	}
	for _, member := range members {
		if bytes.Equal(member, addr) {
			return true
		}
	}
	return false
}

// Dirty reports how many keys have staged writes.
func (m *Manager) Dirty() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Commit writes every staged change as one atomic batch. The manager cannot
// be used afterwards.
func (m *Manager) Commit() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	batch := storage.NewBatch()
	for _, key := range m.order {
		write := m.pending[key]
		if write.deleted {
			batch.Delete([]byte(key))
			continue
		}
		batch.Put([]byte(key), write.value)
	}
	if err := m.db.Write(batch); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	m.closed = true
	m.pending = nil
	m.order = nil
	return nil
}

// Discard drops all staged changes.
func (m *Manager) Discard() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.pending = nil
	m.order = nil
}
