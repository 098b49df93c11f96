package store

func (s *Store) runMigrations() error {
	migrations := []string{
		// One row per run of the tracking loop
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			camera TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			started_at DATETIME NOT NULL,
			ended_at DATETIME
		)`,

		// Every command the loop attempted, delivered or not
		`CREATE TABLE IF NOT EXISTS commands (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT REFERENCES sessions(id) ON DELETE CASCADE,
			kind TEXT NOT NULL,
			direction TEXT NOT NULL DEFAULT '',
			speed INTEGER NOT NULL DEFAULT 0,
			ok INTEGER NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			sent_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_commands_session_id ON commands(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_commands_sent_at ON commands(sent_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}
