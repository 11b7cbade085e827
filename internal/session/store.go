package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gorow/internal/formats/rws"
	"gorow/internal/migrations"
	"gorow/internal/stroke"
)

type SchemaVersionError struct {
	Path    string
	Stored  int
	Current int
}

func (e *SchemaVersionError) Error() string {
	if e.Stored > e.Current {
		return fmt.Sprintf("schema version mismatch in '%s': file is v%d, newer than supported v%d",
			e.Path, e.Stored, e.Current)
	}
	return fmt.Sprintf("schema version mismatch in '%s': file is v%d, expected v%d (enable migration to upgrade)",
		e.Path, e.Stored, e.Current)
}

// ListSessions returns the session files in dir sorted by name, which is
// also chronological order. A missing directory has no sessions.
func ListSessions(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != rws.Extension {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

func DeleteSession(path string) error {
	return os.Remove(path)
}

// LoadSession reads a session file and returns its rows in the current
// schema. Older files are upgraded only when autoMigrate is set; newer
// files are always rejected.
func LoadSession(path string, autoMigrate bool) (rws.Table, error) {
	return loadSession(path, autoMigrate, migrations.CurrentSchemaVersion, migrations.Default)
}

func loadSession(path string, autoMigrate bool, current int, reg *migrations.Registry) (rws.Table, error) {
	table, err := rws.Read(path)
	if err != nil {
		return rws.Table{}, err
	}
	stored, err := table.SchemaVersion()
	if err != nil {
		return rws.Table{}, err
	}

	switch {
	case stored == current:
		return table, nil
	case stored > current || !autoMigrate:
		return rws.Table{}, &SchemaVersionError{Path: path, Stored: stored, Current: current}
	}

	migrated, err := reg.Apply(table, stored, current)
	if err != nil {
		return rws.Table{}, err
	}
	migrated.SetSchemaVersion(current)
	return migrated, nil
}

// ParseStart returns the start time encoded in a session id or file path.
func ParseStart(id string) (time.Time, error) {
	name := strings.TrimSuffix(filepath.Base(id), rws.Extension)
	return time.ParseInLocation(TimeLayout, name, time.Local)
}

// HistoricalStats returns the statistics of a stored session, or nil if
// the file does not exist or holds no rows.
func HistoricalStats(path string) (*stroke.Stats, error) {
	table, err := LoadSession(path, true)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return stroke.CalculateTable(table), nil
}

// AnalyzeAll pools every readable session in dir. It returns nil if there
// are no sessions.
func AnalyzeAll(dir string) (*stroke.Rollup, error) {
	paths, err := ListSessions(dir)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, nil
	}

	tables := make([]rws.Table, 0, len(paths))
	for _, path := range paths {
		table, err := LoadSession(path, true)
		if err != nil {
			return nil, fmt.Errorf("could not load '%s': %w", path, err)
		}
		tables = append(tables, table)
	}
	return stroke.Summarize(tables), nil
}

// Compare returns the difference between two stored sessions, or nil if
// either has no statistics.
func Compare(first, second string) (*stroke.Comparison, error) {
	a, err := HistoricalStats(first)
	if err != nil {
		return nil, err
	}
	b, err := HistoricalStats(second)
	if err != nil {
		return nil, err
	}
	return stroke.Compare(a, b), nil
}
