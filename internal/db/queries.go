package db

var Sessions = `
	SELECT *
	FROM sessions
	ORDER BY start`

var Session = `
	SELECT *
	FROM sessions
	WHERE id = ?`

var InsertSession = `
	INSERT OR REPLACE
	INTO sessions (id, start, strokes, distance, duration, mean_power, calories, schema_version, pauses, pause_secs)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

var DeleteSession = `
	DELETE
	FROM sessions
	WHERE id = ?`
