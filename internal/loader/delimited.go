package loader

import (
	"encoding/csv"
	"os"
)

// readDelimited reads a CSV or TSV file into rows of fields.
func readDelimited(path string, delimiter rune) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = delimiter
	r.FieldsPerRecord = -1 // short rows become malformed-row diagnostics
	r.TrimLeadingSpace = true

	return r.ReadAll()
}
