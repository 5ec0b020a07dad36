package store

import (
	"fmt"

	"github.com/kavwad/clippertv/internal/models"
)

// cacheToken describes the DB state a cached load was taken from. Any
// write moves at least one of the three fields.
type cacheToken struct {
	updatedAt  string
	latestTrip string
	count      int
}

type cacheEntry struct {
	token cacheToken
	txns  []models.Transaction
}

func (db *DB) fetchCacheToken(riderID string) (cacheToken, error) {
	var t cacheToken
	err := db.QueryRow(`
		SELECT
			COALESCE(MAX(updated_at), ''),
			COALESCE(MAX(transaction_date), ''),
			COUNT(*)
		FROM trips
		WHERE rider_id = ?
	`, riderID).Scan(&t.updatedAt, &t.latestTrip, &t.count)
	if err != nil {
		return cacheToken{}, fmt.Errorf("query cache token: %w", err)
	}
	return t, nil
}

// cachedTransactions returns the cached history when it still matches
// the database state.
func (db *DB) cachedTransactions(riderID string) ([]models.Transaction, bool) {
	db.mu.Lock()
	entry, ok := db.cache[riderID]
	db.mu.Unlock()
	if !ok {
		return nil, false
	}

	current, err := db.fetchCacheToken(riderID)
	if err != nil || current != entry.token {
		db.invalidateCache(riderID)
		return nil, false
	}
	return copyTransactions(entry.txns), true
}

func (db *DB) cacheTransactions(riderID string, txns []models.Transaction) {
	token, err := db.fetchCacheToken(riderID)
	if err != nil {
		return
	}
	db.mu.Lock()
	db.cache[riderID] = cacheEntry{token: token, txns: copyTransactions(txns)}
	db.mu.Unlock()
}

func (db *DB) invalidateCache(riderID string) {
	db.mu.Lock()
	delete(db.cache, riderID)
	db.mu.Unlock()
}

// Callers get their own slice, so categorizing or sorting a loaded
// history in place cannot corrupt the cache.
func copyTransactions(txns []models.Transaction) []models.Transaction {
	out := make([]models.Transaction, len(txns))
	copy(out, txns)
	return out
}
