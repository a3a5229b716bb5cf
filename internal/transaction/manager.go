// Package transaction stages batches of item operations that are committed
// to the store as a single raft command.
package transaction

import (
	"errors"
	"sync"

	"github.com/ASHISH26940/homestate/internal/model"
	"github.com/google/uuid"
)

// ErrNotFound is returned for unknown or already cleared transactions.
var ErrNotFound = errors.New("transaction not found")

// Operation kinds inside a write set.
const (
	OpAdd    = "ADD"
	OpRemove = "REMOVE"
	OpUpdate = "UPDATE"
)

// WriteOp is one staged item operation.
type WriteOp struct {
	Op   string     `json:"op"`
	Item model.Item `json:"item"`
}

// Transaction holds the operations staged so far. Its ID is used as the
// owner of every change event the commit produces.
type Transaction struct {
	ID string

	mu       sync.Mutex
	writeSet []WriteOp
}

// StageAdd queues an insert of item.
func (t *Transaction) StageAdd(item model.Item) {
	t.stage(WriteOp{Op: OpAdd, Item: item})
}

// StageRemove queues a delete of id.
func (t *Transaction) StageRemove(id int) {
	t.stage(WriteOp{Op: OpRemove, Item: model.Item{ID: id}})
}

// StageUpdate queues a replace of item.
func (t *Transaction) StageUpdate(item model.Item) {
	t.stage(WriteOp{Op: OpUpdate, Item: item})
}

func (t *Transaction) stage(op WriteOp) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeSet = append(t.writeSet, op)
}

// WriteSet returns a copy of the staged operations in staging order.
func (t *Transaction) WriteSet() []WriteOp {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]WriteOp(nil), t.writeSet...)
}

// Manager is a thread-safe registry of in-flight transactions.
type Manager struct {
	mu           sync.RWMutex
	transactions map[string]*Transaction
}

// NewManager creates a new transaction manager.
func NewManager() *Manager {
	return &Manager{
		transactions: make(map[string]*Transaction),
	}
}

// Begin starts a new transaction.
func (m *Manager) Begin() *Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &Transaction{ID: uuid.NewString()}
	m.transactions[tx.ID] = tx
	return tx
}

// Get retrieves an active transaction by its ID.
func (m *Manager) Get(txID string) (*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.transactions[txID]
	if !ok {
		return nil, ErrNotFound
	}
	return tx, nil
}

// Clear forgets a transaction after commit or abort.
func (m *Manager) Clear(txID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.transactions, txID)
}
