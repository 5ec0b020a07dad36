package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/kavwad/clippertv/internal/models"
)

// Fingerprint computes a deterministic content hash for a transaction.
// The payload is the rider plus the nine canonical fields as compact
// JSON with sorted keys; absent strings and null amounts serialize as
// JSON null so "no value" hashes identically everywhere.
func Fingerprint(riderID string, t models.Transaction) string {
	payload := map[string]any{
		"rider_id":         riderID,
		"Transaction Date": hashTime(t.Date),
		"Transaction Type": hashString(t.Type),
		"Category":         hashString(t.Category),
		"Location":         hashString(t.Location),
		"Route":            hashString(t.Route),
		"Debit":            hashFloat(t.Debit),
		"Credit":           hashFloat(t.Credit),
		"Balance":          hashFloat(t.Balance),
		"Product":          hashString(t.Product),
	}

	// Map keys marshal in sorted order, so this is canonical. A map of
	// strings, floats, and nils cannot fail to marshal.
	serialized, _ := json.Marshal(payload)
	sum := sha256.Sum256(serialized)
	return hex.EncodeToString(sum[:])
}

func hashTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	// Naive UTC, so the same tap hashes the same regardless of the
	// timezone it was parsed in.
	return t.UTC().Format(isoTime)
}

func hashString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func hashFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
