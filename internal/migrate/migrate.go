package migrate

import (
	"context"
	"embed"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/example/court-autobook/internal/db"
)

//go:embed *.sql
var files embed.FS

// Versions lists the embedded migrations in apply order.
func Versions() ([]string, error) {
	entries, err := files.ReadDir(".")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// Up applies every migration not yet recorded in schema_migrations and
// returns the versions it applied.
func Up(ctx context.Context, d *db.DB, log zerolog.Logger) ([]string, error) {
	versions, err := Versions()
	if err != nil {
		return nil, err
	}
	if err := d.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL DEFAULT now());`); err != nil {
		return nil, err
	}

	var applied []string
	for _, v := range versions {
		var done bool
		if err := d.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version=$1)`, v).Scan(&done); err != nil {
			return applied, err
		}
		if done {
			continue
		}
		b, err := files.ReadFile(v)
		if err != nil {
			return applied, err
		}
		if err := d.Exec(ctx, string(b)); err != nil {
			return applied, fmt.Errorf("apply %s: %w", v, err)
		}
		if err := d.Exec(ctx, `INSERT INTO schema_migrations(version) VALUES ($1)`, v); err != nil {
			return applied, err
		}
		log.Info().Str("version", v).Msg("migration applied")
		applied = append(applied, v)
	}
	return applied, nil
}
