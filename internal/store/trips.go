package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kavwad/clippertv/internal/models"
)

// isoTime is how trip timestamps are stored: naive UTC with a T
// separator.
const isoTime = "2006-01-02T15:04:05"

// dualTagModes need an Entrance/Exit suffix on their category name;
// single-tag modes are the category by themselves.
var dualTagModes = map[string]bool{
	"BART":     true,
	"Caltrain": true,
	"Ferry":    true,
}

// LoadTransactions returns a rider's history newest-first, with the
// category rebuilt from the stored transit mode and tap direction.
func (db *DB) LoadTransactions(riderID string) ([]models.Transaction, error) {
	if txns, ok := db.cachedTransactions(riderID); ok {
		return txns, nil
	}

	if err := db.EnsureRider(riderID); err != nil {
		return nil, err
	}

	rows, err := db.Query(`
		SELECT t.id, t.rider_id, t.transaction_date, t.transaction_type,
			   tm.name, t.location, t.route, t.debit, t.credit, t.balance, t.product
		FROM trips t
		LEFT JOIN transit_modes tm ON t.transit_id = tm.id
		WHERE t.rider_id = ?
		ORDER BY t.transaction_date DESC
	`, riderID)
	if err != nil {
		return nil, fmt.Errorf("query trips: %w", err)
	}
	defer rows.Close()

	var txns []models.Transaction
	for rows.Next() {
		var t models.Transaction
		var date string
		var mode, location, route, product sql.NullString
		var debit, credit, balance sql.NullFloat64
		if err := rows.Scan(&t.ID, &t.RiderID, &date, &t.Type,
			&mode, &location, &route, &debit, &credit, &balance, &product); err != nil {
			return nil, fmt.Errorf("scan trip: %w", err)
		}

		t.Date, err = time.Parse(isoTime, date)
		if err != nil {
			return nil, fmt.Errorf("parse trip date %q: %w", date, err)
		}
		t.Category = reconstructCategory(mode.String, t.Type)
		t.Location = location.String
		t.Route = route.String
		t.Product = product.String
		if debit.Valid {
			t.Debit = &debit.Float64
		}
		if credit.Valid {
			t.Credit = &credit.Float64
		}
		if balance.Valid {
			t.Balance = &balance.Float64
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	db.cacheTransactions(riderID, txns)
	return txns, nil
}

// reconstructCategory rebuilds the app-facing category from the
// normalized columns: BART + entry becomes "BART Entrance", single-tag
// modes are their own category, and trips with no mode are Unknown.
func reconstructCategory(mode, txnType string) string {
	if mode == "" {
		return "Unknown"
	}
	if dualTagModes[mode] {
		switch txnType {
		case "entry":
			return mode + " Entrance"
		case "exit":
			return mode + " Exit"
		}
	}
	return mode
}

// parseCategory is the write-side inverse: it maps a category to the
// transit mode ID and the normalized tap direction.
func parseCategory(category string, modeIDs map[string]int64) (sql.NullInt64, string) {
	if category == "" {
		return sql.NullInt64{}, ""
	}

	mode, txnType := category, "entry"
	if m, ok := strings.CutSuffix(category, " Entrance"); ok {
		mode = m
	} else if m, ok := strings.CutSuffix(category, " Exit"); ok {
		mode, txnType = m, "exit"
	}

	id, ok := modeIDs[mode]
	if !ok {
		return sql.NullInt64{}, txnType
	}
	return sql.NullInt64{Int64: id, Valid: true}, txnType
}

// tripKey is the natural identity of a stored trip. Nulls format as
// "" so the key is comparable.
type tripKey struct {
	date     string
	typ      string
	location string
	debit    string
	credit   string
}

func newTripKey(date, typ, location string, debit, credit *float64) tripKey {
	return tripKey{
		date:     date,
		typ:      typ,
		location: location,
		debit:    keyFloat(debit),
		credit:   keyFloat(credit),
	}
}

func keyFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

// existingTripKeys maps each stored trip's natural key to its row ID.
func (db *DB) existingTripKeys(riderID string) (map[tripKey]int64, error) {
	rows, err := db.Query(`
		SELECT id, transaction_date, transaction_type, location, debit, credit
		FROM trips
		WHERE rider_id = ?
	`, riderID)
	if err != nil {
		return nil, fmt.Errorf("query trip keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[tripKey]int64)
	for rows.Next() {
		var id int64
		var date, typ string
		var location sql.NullString
		var debit, credit sql.NullFloat64
		if err := rows.Scan(&id, &date, &typ, &location, &debit, &credit); err != nil {
			return nil, fmt.Errorf("scan trip key: %w", err)
		}
		var d, c *float64
		if debit.Valid {
			d = &debit.Float64
		}
		if credit.Valid {
			c = &credit.Float64
		}
		keys[newTripKey(date, typ, location.String, d, c)] = id
	}
	return keys, rows.Err()
}

// existingHashes maps each stored content hash to its trip ID.
func (db *DB) existingHashes(riderID string) (map[string]int64, error) {
	rows, err := db.Query(`
		SELECT content_hash, id
		FROM trips
		WHERE rider_id = ? AND content_hash IS NOT NULL
	`, riderID)
	if err != nil {
		return nil, fmt.Errorf("query trip hashes: %w", err)
	}
	defer rows.Close()

	hashes := make(map[string]int64)
	for rows.Next() {
		var hash string
		var id int64
		if err := rows.Scan(&hash, &id); err != nil {
			return nil, fmt.Errorf("scan trip hash: %w", err)
		}
		hashes[hash] = id
	}
	return hashes, rows.Err()
}
