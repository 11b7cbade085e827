package migrations

import (
	"fmt"
	"sort"

	"github.com/hashicorp/go-hclog"

	"gorow/internal/formats/rws"
)

const CurrentSchemaVersion = rws.CurrentVersion

type Transform func(rws.Table) (rws.Table, error)

type Migration struct {
	From        int
	To          int
	Description string
	Transform   Transform
}

type ChainError struct {
	From int
	To   int
	Msg  string
	Err  error
}

func (e *ChainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *ChainError) Unwrap() error {
	return e.Err
}

type key struct {
	from, to int
}

type Registry struct {
	Logger     hclog.Logger
	migrations map[key]Migration
}

func NewRegistry() *Registry {
	return &Registry{
		Logger:     hclog.NewNullLogger(),
		migrations: make(map[key]Migration),
	}
}

// Default holds the migrations applied to session files on load.
var Default = NewRegistry()

// Register adds a migration from one schema version to the next. A later
// registration for the same pair replaces the earlier one.
func (r *Registry) Register(from, to int, description string, transform Transform) {
	if to <= from {
		panic(fmt.Sprintf("migrations: invalid step v%d to v%d", from, to))
	}
	if description == "" {
		description = fmt.Sprintf("Migrate from schema v%d to v%d", from, to)
	}
	r.migrations[key{from, to}] = Migration{
		From:        from,
		To:          to,
		Description: description,
		Transform:   transform,
	}
}

// Path returns the single-step migrations leading from one version to
// another.
func (r *Registry) Path(from, to int) ([]Migration, error) {
	if from == to {
		return nil, nil
	}
	if from > to {
		return nil, &ChainError{
			From: from,
			To:   to,
			Msg:  fmt.Sprintf("cannot downgrade from v%d to v%d", from, to),
		}
	}

	var path []Migration
	for v := from; v < to; v++ {
		m, ok := r.migrations[key{v, v + 1}]
		if !ok {
			return nil, &ChainError{
				From: v,
				To:   v + 1,
				Msg: fmt.Sprintf("no migration found from v%d to v%d, cannot upgrade from v%d to v%d",
					v, v+1, from, to),
			}
		}
		path = append(path, m)
	}
	return path, nil
}

// Apply upgrades t from one version to another. The input table is never
// modified.
func (r *Registry) Apply(t rws.Table, from, to int) (rws.Table, error) {
	path, err := r.Path(from, to)
	if err != nil {
		return rws.Table{}, err
	}
	if len(path) == 0 {
		return t, nil
	}

	r.Logger.Info("migrating data", "from", from, "to", to, "steps", len(path))
	migrated := t.Clone()
	for _, m := range path {
		r.Logger.Debug("applying migration", "description", m.Description)
		migrated, err = m.Transform(migrated)
		if err != nil {
			return rws.Table{}, &ChainError{
				From: m.From,
				To:   m.To,
				Msg:  fmt.Sprintf("migration from v%d to v%d failed", m.From, m.To),
				Err:  err,
			}
		}
	}
	return migrated, nil
}

func (r *Registry) List() []Migration {
	list := make([]Migration, 0, len(r.migrations))
	for _, m := range r.migrations {
		list = append(list, m)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].From != list[j].From {
			return list[i].From < list[j].From
		}
		return list[i].To < list[j].To
	})
	return list
}
