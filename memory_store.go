package gateway

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryActionKeyStore is a process local ActionKeyStore, used in tests and
// single instance development setups.
type MemoryActionKeyStore struct {
	mu      sync.RWMutex
	records map[string]ActionKeyRecord
}

func NewMemoryActionKeyStore() *MemoryActionKeyStore {
	return &MemoryActionKeyStore{records: make(map[string]ActionKeyRecord)}
}

func memoryKey(actionType ActionType, email string) string {
	return string(actionType) + "|" + normalizeEmail(email)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Put overwrites any record for the same action type and email.
func (s *MemoryActionKeyStore) Put(_ context.Context, record *ActionKeyRecord) error {
	if record == nil {
		return nil
	}
	stored := *record
	stored.Email = normalizeEmail(record.Email)
	s.mu.Lock()
	s.records[memoryKey(record.ActionType, record.Email)] = stored
	s.mu.Unlock()
	return nil
}

func (s *MemoryActionKeyStore) Get(_ context.Context, actionType ActionType, email string) (*ActionKeyRecord, error) {
	s.mu.RLock()
	record, ok := s.records[memoryKey(actionType, email)]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrKeyNotFound.Clone().WithMetadata(map[string]any{
			"action_type": string(actionType),
		})
	}
	return &record, nil
}

func (s *MemoryActionKeyStore) Delete(_ context.Context, actionType ActionType, email string) error {
	s.mu.Lock()
	delete(s.records, memoryKey(actionType, email))
	s.mu.Unlock()
	return nil
}

func (s *MemoryActionKeyStore) DeleteExpired(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, record := range s.records {
		if record.Expired(before) {
			delete(s.records, k)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored records.
func (s *MemoryActionKeyStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
