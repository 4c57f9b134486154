// Package store provides in-memory commission.Store and pipeline
// implementations for tests and demos.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/commission-engine/commission"
)

// =============================================================================
// MEMORY STORE - In-memory ledger (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	seq          int64
	transactions map[commission.RepID][]commission.Transaction
	idempotency  map[string]bool
}

func NewMemory() *Memory {
	return &Memory{
		transactions: make(map[commission.RepID][]commission.Transaction),
		idempotency:  make(map[string]bool),
	}
}

// Append adds a single entry. Append-only.
func (m *Memory) Append(ctx context.Context, tx commission.Transaction) (commission.Transaction, error) {
	out, err := m.AppendBatch(ctx, []commission.Transaction{tx})
	if err != nil {
		return commission.Transaction{}, err
	}
	return out[0], nil
}

// AppendBatch adds entries atomically: readers see all of them or none.
func (m *Memory) AppendBatch(_ context.Context, txs []commission.Transaction) ([]commission.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]bool, len(txs))
	for _, tx := range txs {
		if tx.IdempotencyKey == "" {
			continue
		}
		if m.idempotency[tx.IdempotencyKey] || seen[tx.IdempotencyKey] {
			return nil, commission.ErrDuplicateIdempotencyKey
		}
		seen[tx.IdempotencyKey] = true
	}

	out := make([]commission.Transaction, 0, len(txs))
	for _, tx := range txs {
		m.seq++
		tx.Seq = m.seq
		m.insertLocked(tx)
		out = append(out, tx)
	}
	return out, nil
}

func (m *Memory) insertLocked(tx commission.Transaction) {
	txs := m.transactions[tx.RepID]

	// Seq only grows, so the insertion point is after every entry with
	// Timestamp <= tx.Timestamp.
	i := sort.Search(len(txs), func(i int) bool {
		return txs[i].Timestamp.After(tx.Timestamp)
	})

	txs = append(txs, commission.Transaction{})
	copy(txs[i+1:], txs[i:])
	txs[i] = tx
	m.transactions[tx.RepID] = txs

	if tx.IdempotencyKey != "" {
		m.idempotency[tx.IdempotencyKey] = true
	}
}

func (m *Memory) Load(_ context.Context, repID commission.RepID) ([]commission.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]commission.Transaction, len(m.transactions[repID]))
	copy(result, m.transactions[repID])
	return result, nil
}

func (m *Memory) LoadRange(_ context.Context, repID commission.RepID, from, to time.Time) ([]commission.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []commission.Transaction
	for _, tx := range m.transactions[repID] {
		if commission.InRange(tx.Timestamp, from, to) {
			result = append(result, tx)
		}
	}
	return result, nil
}

func (m *Memory) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[idempotencyKey], nil
}

// =============================================================================
// MEMORY PIPELINE - commission.PipelineSource for tests and demos
// =============================================================================

type Pipeline struct {
	mu    sync.RWMutex
	deals map[commission.RepID][]commission.PipelineDeal
}

func NewPipeline(deals ...commission.PipelineDeal) *Pipeline {
	p := &Pipeline{deals: make(map[commission.RepID][]commission.PipelineDeal)}
	for _, d := range deals {
		p.Add(d)
	}
	return p
}

func (p *Pipeline) Add(d commission.PipelineDeal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deals[d.RepID] = append(p.deals[d.RepID], d)
}

func (p *Pipeline) OpenDeals(_ context.Context, repID commission.RepID) ([]commission.PipelineDeal, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]commission.PipelineDeal(nil), p.deals[repID]...), nil
}
