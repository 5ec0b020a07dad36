package store

import (
	"fmt"

	"github.com/kavwad/clippertv/internal/models"
)

// AddTransactions merges a batch of transactions into a rider's
// history. Rows already present by content hash are dropped, as are
// repeats within the batch; the rest either update the trip with the
// same natural key or insert a new one. The whole batch commits in a
// single transaction, and the returned result accounts for every
// incoming row.
func (db *DB) AddTransactions(riderID string, txns []models.Transaction) (models.MergeResult, error) {
	result := models.MergeResult{Incoming: len(txns)}
	if len(txns) == 0 {
		return result, nil
	}

	if err := db.EnsureRider(riderID); err != nil {
		return result, err
	}
	modeIDs, err := db.transitModeIDs()
	if err != nil {
		return result, err
	}
	known, err := db.existingHashes(riderID)
	if err != nil {
		return result, err
	}
	keys, err := db.existingTripKeys(riderID)
	if err != nil {
		return result, err
	}

	tx, err := db.Begin()
	if err != nil {
		return result, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	seen := make(map[string]bool, len(txns))
	for _, t := range txns {
		hash := Fingerprint(riderID, t)
		if _, ok := known[hash]; ok {
			result.Duplicates++
			continue
		}
		if seen[hash] {
			result.Duplicates++
			continue
		}
		seen[hash] = true

		if t.Date.IsZero() {
			result.Skipped++
			continue
		}

		date := t.Date.UTC().Format(isoTime)
		transitID, txnType := parseCategory(t.Category, modeIDs)
		if txnType == "" {
			txnType = t.Type
		}
		if txnType == "" {
			txnType = "manual"
		}

		key := newTripKey(date, txnType, t.Location, t.Debit, t.Credit)
		if id, ok := keys[key]; ok {
			_, err := tx.Exec(`
				UPDATE trips
				SET transit_id = ?, location = ?, route = ?,
					debit = ?, credit = ?, balance = ?, product = ?,
					content_hash = ?, updated_at = datetime('now')
				WHERE id = ?
			`, transitID, nullString(t.Location), nullString(t.Route),
				t.Debit, t.Credit, t.Balance, nullString(t.Product), hash, id)
			if err != nil {
				return result, fmt.Errorf("update trip: %w", err)
			}
			result.Updated++
			continue
		}

		res, err := tx.Exec(`
			INSERT INTO trips (
				rider_id, transit_id, transaction_type, transaction_date,
				location, route, debit, credit, balance, product, content_hash
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, riderID, transitID, txnType, date,
			nullString(t.Location), nullString(t.Route),
			t.Debit, t.Credit, t.Balance, nullString(t.Product), hash)
		if err != nil {
			return result, fmt.Errorf("insert trip: %w", err)
		}
		if id, err := res.LastInsertId(); err == nil {
			// Later batch rows with the same natural key but different
			// content update this trip instead of inserting again.
			keys[key] = id
		}
		result.New++
	}

	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("commit: %w", err)
	}

	db.invalidateCache(riderID)
	return result, nil
}

// nullString stores "" as NULL; the model treats them as the same
// absent value.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
