package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/dshills/newsfuse/pkg/types"
)

// Table is a CSV file held in memory
type Table struct {
	Header []string
	Rows   [][]string
}

// Column returns the index of the named column, or -1
func (t *Table) Column(name string) int {
	if i, ok := indexColumns(t.Header)[name]; ok {
		return i
	}
	return -1
}

// ReadTable reads a whole CSV file. Rows may have a different field count than
// the header; callers decide how to treat them.
func ReadTable(path string) (*Table, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", types.ErrMissingSourceFile, path)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: %s is empty", types.ErrMalformedRecord, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}

	t := &Table{Header: header}
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		t.Rows = append(t.Rows, record)
	}
	return t, nil
}
