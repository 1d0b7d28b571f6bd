// Package ledger provides read-only lookup of customer financial data.
package ledger

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dvloznov/bank-assistant/internal/domain"
)

// DefaultUserID is the sentinel user id used when a request does not carry
// one. It resolves to the demo account.
const DefaultUserID = "default"

// Repository looks up a customer's account data.
// Lookup always succeeds: unknown ids resolve to a default account.
type Repository interface {
	Lookup(userID string) domain.Account
}

// Memory is an immutable in-memory Repository. It is safe for concurrent
// use without locking because nothing mutates it after construction.
type Memory struct {
	accounts  map[string]domain.Account
	defaultID string
}

// NewMemory builds a repository over accounts. defaultID must name one of
// them; it is returned for every unknown id.
func NewMemory(accounts map[string]domain.Account, defaultID string) (*Memory, error) {
	if _, ok := accounts[defaultID]; !ok {
		return nil, fmt.Errorf("NewMemory: default account %q not present", defaultID)
	}

	m := &Memory{
		accounts:  make(map[string]domain.Account, len(accounts)),
		defaultID: defaultID,
	}
	for id, acc := range accounts {
		m.accounts[id] = acc.Clone()
	}
	return m, nil
}

// Lookup returns a copy of the account for userID, or of the default
// account when userID is empty or unknown.
func (m *Memory) Lookup(userID string) domain.Account {
	if acc, ok := m.accounts[strings.TrimSpace(userID)]; ok {
		return acc.Clone()
	}
	return m.accounts[m.defaultID].Clone()
}

// DefaultID returns the id that unknown users resolve to.
func (m *Memory) DefaultID() string {
	return m.defaultID
}

// IDs returns the known user ids in sorted order.
func (m *Memory) IDs() []string {
	ids := make([]string, 0, len(m.accounts))
	for id := range m.accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

var _ Repository = (*Memory)(nil)
