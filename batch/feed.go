package batch

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// DefaultEmailColumn is used when no column name is given.
const DefaultEmailColumn = "email"

// ReadHeader returns the first record of a CSV stream.
func ReadHeader(r io.Reader) ([]string, error) {
	cr := newReader(r)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read csv header: empty input")
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	return trimBOM(header), nil
}

// ReadRows reads a CSV stream with a header line and returns one Row
// per record whose email cell is not empty. emailColumn is matched
// case-insensitively; "" means DefaultEmailColumn.
func ReadRows(r io.Reader, emailColumn string) ([]string, []Row, error) {
	if emailColumn == "" {
		emailColumn = DefaultEmailColumn
	}

	cr := newReader(r)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("%w: empty input", ErrNoEmailColumn)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read csv header: %w", err)
	}
	header = trimBOM(header)

	col := -1
	for i, name := range header {
		if strings.EqualFold(strings.TrimSpace(name), emailColumn) {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, nil, fmt.Errorf("%w: %q", ErrNoEmailColumn, emailColumn)
	}

	var rows []Row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read csv: %w", err)
		}
		if col >= len(rec) {
			continue
		}
		email := strings.TrimSpace(rec[col])
		if email == "" {
			continue
		}
		rows = append(rows, Row{Email: email, Fields: rec})
	}
	return header, rows, nil
}

func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	return cr
}

// trimBOM drops a UTF-8 byte order mark from the first header cell.
func trimBOM(header []string) []string {
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	return header
}
