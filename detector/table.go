package detector

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// CandidateTable holds the latest precomputed candidate rows per user. The
// computation itself lives outside this system; an external feed replaces a
// user's rows wholesale whenever it reprices their opportunities.
type CandidateTable struct {
	mu   sync.RWMutex
	rows map[common.Address][]Candidate
}

func NewCandidateTable() *CandidateTable {
	return &CandidateTable{rows: make(map[common.Address][]Candidate)}
}

// Replace swaps in the given rows for a user. Amounts are deep-copied. An
// empty slice clears the user's rows.
func (t *CandidateTable) Replace(user common.Address, rows []Candidate) {
	copied := make([]Candidate, 0, len(rows))
	for _, c := range rows {
		cp := c
		if c.DebtToCover != nil {
			cp.DebtToCover = new(big.Int).Set(c.DebtToCover)
		}
		if c.Profit != nil {
			cp.Profit = new(big.Int).Set(c.Profit)
		}
		copied = append(copied, cp)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if len(copied) == 0 {
		delete(t.rows, user)
		return
	}
	t.rows[user] = copied
}

// Candidates returns a detached copy of the user's rows, nil if none.
func (t *CandidateTable) Candidates(user common.Address) []Candidate {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rows, ok := t.rows[user]
	if !ok {
		return nil
	}
	out := make([]Candidate, 0, len(rows))
	for _, c := range rows {
		cp := c
		if c.DebtToCover != nil {
			cp.DebtToCover = new(big.Int).Set(c.DebtToCover)
		}
		if c.Profit != nil {
			cp.Profit = new(big.Int).Set(c.Profit)
		}
		out = append(out, cp)
	}
	return out
}
