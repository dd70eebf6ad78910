package wordlist

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// CSVFileName is the download name offered to users.
const CSVFileName = "extracted_words.csv"

// EncodeCSV renders a word list as a CSV payload with a single
// "Extracted Words" header column and one word per line.
func EncodeCSV(words []string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"Extracted Words"}); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, word := range words {
		if err := w.Write([]string{word}); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
