package common

import (
	"database/sql"

	"github.com/blockloop/scan"
	_ "modernc.org/sqlite"

	queries "gorow/internal/db"
	"gorow/internal/migrations"
	"gorow/internal/session"
	"gorow/internal/stroke"
)

// SessionRecord is the catalog summary of a saved session file.
type SessionRecord struct {
	Id            string  `db:"id"             json:"id"`
	Start         int64   `db:"start"          json:"start"`
	Strokes       int     `db:"strokes"        json:"strokes"`
	Distance      float64 `db:"distance"       json:"distance_m"`
	Duration      float64 `db:"duration"       json:"duration_secs"`
	MeanPower     float64 `db:"mean_power"     json:"mean_power_watts"`
	Calories      float64 `db:"calories"       json:"calories"`
	SchemaVersion int     `db:"schema_version" json:"schema_version"`
	Pauses        int     `db:"pauses"         json:"pauses"`
	PauseSecs     float64 `db:"pause_secs"     json:"pause_secs"`
}

var recordColumns = []string{
	"id", "start", "strokes", "distance", "duration", "mean_power",
	"calories", "schema_version", "pauses", "pause_secs",
}

type Notifier interface {
	Notify(id string) error
}

// Catalog indexes saved sessions in a SQLite database so listings do not
// need to read every session file.
type Catalog struct {
	Db       *sql.DB
	Notifier Notifier
}

func OpenCatalog(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(queries.Schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Catalog{Db: db}, nil
}

func (this *Catalog) Close() error {
	return this.Db.Close()
}

// Archive records a finished session and announces it to the notifier,
// if one is set.
func (this *Catalog) Archive(s *session.Session, stats *stroke.Stats) error {
	record := SessionRecord{
		Id:            s.ID(),
		Start:         s.Start().Unix(),
		SchemaVersion: migrations.CurrentSchemaVersion,
		Pauses:        len(s.Pauses()),
		PauseSecs:     s.TotalPause().Seconds(),
	}
	if stats != nil {
		record.Strokes = stats.NumStrokes
		record.Distance = stats.TotalDistance
		record.Duration = stats.TotalDuration
		record.MeanPower = stats.MeanPower
		record.Calories = stats.TotalCalories
	}
	if err := this.Put(record); err != nil {
		return err
	}

	if this.Notifier != nil {
		return this.Notifier.Notify(record.Id)
	}
	return nil
}

func (this *Catalog) Put(record SessionRecord) error {
	vals, _ := scan.Values(recordColumns, &record)
	_, err := this.Db.Exec(queries.InsertSession, vals...)
	return err
}

func (this *Catalog) Sessions() ([]SessionRecord, error) {
	rows, err := this.Db.Query(queries.Sessions)
	if err != nil {
		return nil, err
	}
	var records []SessionRecord
	if err := scan.RowsStrict(&records, rows); err != nil {
		return nil, err
	}
	return records, nil
}

// Session returns the record of one session, or sql.ErrNoRows.
func (this *Catalog) Session(id string) (*SessionRecord, error) {
	rows, err := this.Db.Query(queries.Session, id)
	if err != nil {
		return nil, err
	}
	var record SessionRecord
	if err := scan.RowStrict(&record, rows); err != nil {
		return nil, err
	}
	return &record, nil
}

func (this *Catalog) Delete(id string) error {
	_, err := this.Db.Exec(queries.DeleteSession, id)
	return err
}
