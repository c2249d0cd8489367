package db

import (
	"context"
)

// The schema is portable between postgres and sqlite: expiry is kept as
// unix milliseconds so neither driver has to round-trip time zones.
const sessionMigration = `
CREATE TABLE IF NOT EXISTS sessions (
    session_id text PRIMARY KEY,
    access_token text NOT NULL,
    refresh_token text NOT NULL,
    expires_at_ms bigint NOT NULL,
    updated_at_ms bigint NOT NULL
);
`

func RunSessionMigration(ctx context.Context, d *DB) error {
	_, err := d.ExecContext(ctx, sessionMigration)
	return err
}
