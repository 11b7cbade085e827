package rws

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ugorji/go/codec"
)

const (
	Extension        = ".rws"
	SchemaVersionKey = "schema_version"

	// CurrentVersion is the column layout written by this build.
	CurrentVersion = 1

	// Files written before versioning existed carry no schema_version tag.
	legacyVersion = 1

	magic = "RWS"
)

type Column struct {
	Name   string    `codec:","`
	Values []float64 `codec:","`
}

// Table is the columnar content of a session file: one column per
// per-stroke field plus file level metadata.
type Table struct {
	Metadata map[string]string `codec:","`
	Columns  []Column          `codec:","`
}

type file struct {
	Magic    string            `codec:","`
	Metadata map[string]string `codec:","`
	Columns  []Column          `codec:","`
}

type NotRWSError struct {
	Path string
}

func (e *NotRWSError) Error() string {
	return fmt.Sprintf("'%s' is not a rowing session file", e.Path)
}

type ColumnMismatchError struct {
	Column string
}

func (e *ColumnMismatchError) Error() string {
	return fmt.Sprintf("column '%s' is missing from one of the tables", e.Column)
}

// Len returns the number of rows.
func (t Table) Len() int {
	if len(t.Columns) == 0 {
		return 0
	}
	return len(t.Columns[0].Values)
}

func (t Table) Column(name string) ([]float64, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c.Values, true
		}
	}
	return nil, false
}

// Set replaces the values of an existing column or appends a new one.
func (t *Table) Set(name string, values []float64) {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			t.Columns[i].Values = values
			return
		}
	}
	t.Columns = append(t.Columns, Column{Name: name, Values: values})
}

func (t *Table) Drop(name string) {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			t.Columns = append(t.Columns[:i], t.Columns[i+1:]...)
			return
		}
	}
}

func (t Table) Clone() Table {
	c := Table{Metadata: make(map[string]string, len(t.Metadata))}
	for k, v := range t.Metadata {
		c.Metadata[k] = v
	}
	if t.Columns != nil {
		c.Columns = make([]Column, len(t.Columns))
		for i, col := range t.Columns {
			c.Columns[i] = Column{Name: col.Name, Values: append([]float64(nil), col.Values...)}
		}
	}
	return c
}

// Append returns a new table holding the rows of t followed by the rows of
// other. Both tables must have the same set of columns; the column order of
// t is kept. Metadata is taken from t.
func (t Table) Append(other Table) (Table, error) {
	if len(other.Columns) != len(t.Columns) {
		for _, col := range other.Columns {
			if _, ok := t.Column(col.Name); !ok {
				return Table{}, &ColumnMismatchError{Column: col.Name}
			}
		}
	}
	combined := t.Clone()
	for i, col := range combined.Columns {
		values, ok := other.Column(col.Name)
		if !ok {
			return Table{}, &ColumnMismatchError{Column: col.Name}
		}
		combined.Columns[i].Values = append(col.Values, values...)
	}
	return combined, nil
}

// SchemaVersion returns the version tag of the table. A missing tag means
// the file predates versioning and is treated as version 1.
func (t Table) SchemaVersion() (int, error) {
	s, ok := t.Metadata[SchemaVersionKey]
	if !ok || s == "" {
		return legacyVersion, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s '%s': %w", SchemaVersionKey, s, err)
	}
	return v, nil
}

func (t *Table) SetSchemaVersion(v int) {
	if t.Metadata == nil {
		t.Metadata = make(map[string]string)
	}
	t.Metadata[SchemaVersionKey] = strconv.Itoa(v)
}

func Read(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return Table{}, err
	}
	defer f.Close()

	var h codec.MsgpackHandle
	dec := codec.NewDecoder(bufio.NewReader(f), &h)
	var content file
	if err := dec.Decode(&content); err != nil {
		return Table{}, fmt.Errorf("could not decode '%s': %w", path, err)
	}
	if content.Magic != magic {
		return Table{}, &NotRWSError{Path: path}
	}
	if content.Metadata == nil {
		content.Metadata = make(map[string]string)
	}

	return Table{Metadata: content.Metadata, Columns: content.Columns}, nil
}

// Write replaces the file at path with t. The table is written to a
// temporary file in the same directory which is then renamed over path, so
// readers never observe a half written file.
func Write(path string, t Table) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	var h codec.MsgpackHandle
	enc := codec.NewEncoder(w, &h)
	if err := enc.Encode(file{Magic: magic, Metadata: t.Metadata, Columns: t.Columns}); err != nil {
		tmp.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), path)
}
