package extract

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// CSVTable reads a transaction CSV export into a RawTable. The first
// record is the header; short records are padded so every row has one
// cell per column.
func CSVTable(r io.Reader) (RawTable, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return RawTable{}, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return RawTable{}, nil
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(h)
	}

	rows := make([][]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make([]string, len(header))
		for i := range row {
			if i < len(rec) {
				row[i] = strings.TrimSpace(rec[i])
			}
		}
		rows = append(rows, row)
	}
	return RawTable{Header: header, Records: rows}, nil
}
