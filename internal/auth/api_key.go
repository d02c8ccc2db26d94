package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// Subscription tiers. The tier decides the prompt pipeline: pro keys get
// generated prompts and multi-provider fan-out, free keys get the default
// prompt set on a single provider.
const (
	TierFree = "free"
	TierPro  = "pro"
)

// APIKeyRecord is the view of an API key needed at request time.
type APIKeyRecord struct {
	ID      string
	Name    string
	Tier    string
	Revoked bool
}

// Elevated reports whether this key unlocks the pro pipeline.
func (k *APIKeyRecord) Elevated() bool {
	return k.Tier == TierPro
}

// APIKeyStore resolves plaintext API keys into stored records.
type APIKeyStore interface {
	Lookup(ctx context.Context, plaintextKey string) (*APIKeyRecord, error)
}

// Fingerprint returns the lookup digest of a plaintext key. Keys are
// stored and compared by digest only.
func Fingerprint(plaintextKey string) string {
	sum := sha256.Sum256([]byte(plaintextKey))
	return hex.EncodeToString(sum[:])
}

// InMemoryAPIKeyStore keeps key records in memory, keyed by fingerprint.
// Useful for standalone deployments and tests.
type InMemoryAPIKeyStore struct {
	mu   sync.RWMutex
	keys map[string]*APIKeyRecord
}

func NewInMemoryAPIKeyStore() *InMemoryAPIKeyStore {
	return &InMemoryAPIKeyStore{keys: make(map[string]*APIKeyRecord)}
}

// Add registers a plaintext key with its record.
func (s *InMemoryAPIKeyStore) Add(plaintextKey string, record *APIKeyRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[Fingerprint(plaintextKey)] = record
}

// Revoke marks a key revoked without removing it.
func (s *InMemoryAPIKeyStore) Revoke(plaintextKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.keys[Fingerprint(plaintextKey)]; ok {
		rec.Revoked = true
	}
}

func (s *InMemoryAPIKeyStore) Lookup(ctx context.Context, plaintextKey string) (*APIKeyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.keys[Fingerprint(plaintextKey)]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return rec, nil
}
