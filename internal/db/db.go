package db

var Schema = `
	CREATE TABLE IF NOT EXISTS sessions(
		id TEXT PRIMARY KEY,
		start INTEGER NOT NULL,
		strokes INTEGER NOT NULL,
		distance REAL NOT NULL,
		duration REAL NOT NULL,
		mean_power REAL NOT NULL,
		calories REAL NOT NULL,
		schema_version INTEGER NOT NULL,
		pauses INTEGER NOT NULL,
		pause_secs REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS sessions_start ON sessions (start);`
