// Package sqlite implements the shared state store backing feature
// arbitration: static feature config, live state, the remote-deploy label
// map, and the global cluster-connectivity record.
//
// Live-state writes are per-field UPDATE statements over an ensured row.
// The remote scheduler writes remote_state and instance_id into the same
// rows concurrently; whole-row upserts would clobber it, per-field writes
// interleave safely (last write wins per field).
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"warden"
	"warden/internal/arbiter"

	_ "modernc.org/sqlite"
)

var (
	_ arbiter.ConfigStore = (*Store)(nil)
	_ arbiter.StateStore  = (*Store)(nil)
	_ arbiter.LabelSignal = (*Store)(nil)
)

const connectivityKey = "global"

type Store struct {
	db *sql.DB
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS feature_config (
	name TEXT PRIMARY KEY,
	owner_pref TEXT NOT NULL,
	fallback_allowed INTEGER NOT NULL DEFAULT 0,
	desired_state TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS feature_state (
	name TEXT PRIMARY KEY,
	current_owner TEXT NOT NULL DEFAULT 'none',
	remote_state TEXT NOT NULL DEFAULT 'none',
	instance_id TEXT NOT NULL DEFAULT '',
	system_up INTEGER NOT NULL DEFAULT 0,
	updated_at TEXT NOT NULL,
	stable_version TEXT NOT NULL DEFAULT ''
)`,
	`CREATE TABLE IF NOT EXISTS feature_label (
	name TEXT PRIMARY KEY,
	deploy INTEGER NOT NULL DEFAULT 0,
	updated_at TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS cluster_connectivity (
	id TEXT PRIMARY KEY,
	connected INTEGER NOT NULL DEFAULT 0,
	updated_at TEXT NOT NULL
)`,
}

// Open opens (creating if necessary) the state database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	db, err := openDB(path)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("initialize state schema: %w", err)
		}
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// FeatureConfig returns the static config row for a feature. The bool is
// false when the feature has never been configured.
func (s *Store) FeatureConfig(ctx context.Context, name string) (warden.FeatureConfig, bool, error) {
	var (
		cfg      warden.FeatureConfig
		fallback int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT owner_pref, fallback_allowed, desired_state FROM feature_config WHERE name = ?`,
		name,
	).Scan(&cfg.OwnerPref, &fallback, &cfg.DesiredState)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return warden.FeatureConfig{}, false, nil
		}
		return warden.FeatureConfig{}, false, fmt.Errorf("query feature config: %w", err)
	}
	cfg.Name = name
	cfg.FallbackAllowed = fallback != 0
	return cfg, true, nil
}

// SaveFeatureConfig creates or replaces a feature's static config.
func (s *Store) SaveFeatureConfig(ctx context.Context, cfg warden.FeatureConfig) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feature_config (name, owner_pref, fallback_allowed, desired_state)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		 owner_pref = excluded.owner_pref,
		 fallback_allowed = excluded.fallback_allowed,
		 desired_state = excluded.desired_state`,
		cfg.Name, string(cfg.OwnerPref), boolToInt(cfg.FallbackAllowed), string(cfg.DesiredState),
	)
	if err != nil {
		return fmt.Errorf("save feature config: %w", err)
	}
	return nil
}

// ListFeatureConfigs returns every configured feature, ordered by name.
func (s *Store) ListFeatureConfigs(ctx context.Context) ([]warden.FeatureConfig, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, owner_pref, fallback_allowed, desired_state FROM feature_config ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list feature configs: %w", err)
	}
	defer rows.Close()

	var out []warden.FeatureConfig
	for rows.Next() {
		var (
			cfg      warden.FeatureConfig
			fallback int
		)
		if err := rows.Scan(&cfg.Name, &cfg.OwnerPref, &fallback, &cfg.DesiredState); err != nil {
			return nil, fmt.Errorf("scan feature config: %w", err)
		}
		cfg.FallbackAllowed = fallback != 0
		out = append(out, cfg)
	}
	return out, rows.Err()
}

// FeatureState returns the live state row for a feature. An absent row reads
// as the zero state: no owner, no remote claim, system down.
func (s *Store) FeatureState(ctx context.Context, name string) (warden.FeatureState, error) {
	var (
		st        warden.FeatureState
		up        int
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT current_owner, remote_state, instance_id, system_up, updated_at, stable_version
		 FROM feature_state WHERE name = ?`,
		name,
	).Scan(&st.CurrentOwner, &st.RemoteState, &st.InstanceID, &up, &updatedAt, &st.StableVersion)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return warden.FeatureState{
				Name:         name,
				CurrentOwner: warden.OwnerNone,
				RemoteState:  warden.RemoteNone,
			}, nil
		}
		return warden.FeatureState{}, fmt.Errorf("query feature state: %w", err)
	}
	st.Name = name
	st.Up = up != 0
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		st.UpdatedAt = t
	}
	return st, nil
}

func (s *Store) SetOwner(ctx context.Context, name string, owner warden.Owner, instanceID string) error {
	return s.updateState(ctx, name,
		`UPDATE feature_state SET current_owner = ?, instance_id = ?, updated_at = ? WHERE name = ?`,
		string(owner), instanceID)
}

func (s *Store) SetRemoteState(ctx context.Context, name string, rs warden.RemoteState) error {
	return s.updateState(ctx, name,
		`UPDATE feature_state SET remote_state = ?, updated_at = ? WHERE name = ?`,
		string(rs))
}

func (s *Store) SetSystemUp(ctx context.Context, name string, up bool) error {
	return s.updateState(ctx, name,
		`UPDATE feature_state SET system_up = ?, updated_at = ? WHERE name = ?`,
		boolToInt(up))
}

func (s *Store) SetStableVersion(ctx context.Context, name, version string) error {
	return s.updateState(ctx, name,
		`UPDATE feature_state SET stable_version = ?, updated_at = ? WHERE name = ?`,
		version)
}

// updateState ensures the live-state row exists, then applies a per-field
// update. query must end with "updated_at = ? WHERE name = ?"; args are the
// field values preceding the timestamp.
func (s *Store) updateState(ctx context.Context, name, query string, args ...any) error {
	if err := s.ensureStateRow(ctx, name); err != nil {
		return err
	}
	args = append(args, nowUTC(), name)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update feature state: %w", err)
	}
	return nil
}

func (s *Store) ensureStateRow(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feature_state (name, updated_at) VALUES (?, ?)
		 ON CONFLICT(name) DO NOTHING`,
		name, nowUTC(),
	)
	if err != nil {
		return fmt.Errorf("ensure feature state row: %w", err)
	}
	return nil
}

// Deploy returns the remote-deploy trigger flag for a feature.
func (s *Store) Deploy(ctx context.Context, name string) (bool, error) {
	var deploy int
	err := s.db.QueryRowContext(ctx,
		`SELECT deploy FROM feature_label WHERE name = ?`, name,
	).Scan(&deploy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query feature label: %w", err)
	}
	return deploy != 0, nil
}

// SetDeploy sets or clears the remote-deploy trigger consumed by the remote
// scheduler.
func (s *Store) SetDeploy(ctx context.Context, name string, deploy bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feature_label (name, deploy, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		 deploy = excluded.deploy,
		 updated_at = excluded.updated_at`,
		name, boolToInt(deploy), nowUTC(),
	)
	if err != nil {
		return fmt.Errorf("set feature label: %w", err)
	}
	return nil
}

// Connectivity returns the global cluster-connectivity record. An absent
// record reads as disconnected, which biases arbitration toward local
// fallback.
func (s *Store) Connectivity(ctx context.Context) (warden.Connectivity, error) {
	var (
		connected int
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT connected, updated_at FROM cluster_connectivity WHERE id = ?`,
		connectivityKey,
	).Scan(&connected, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return warden.Connectivity{}, nil
		}
		return warden.Connectivity{}, fmt.Errorf("query cluster connectivity: %w", err)
	}
	conn := warden.Connectivity{Connected: connected != 0}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		conn.UpdatedAt = t
	}
	return conn, nil
}

// SetConnectivity records cluster reachability. The lifecycle core only
// reads this; the writer is the external connectivity agent (and tests).
func (s *Store) SetConnectivity(ctx context.Context, connected bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cluster_connectivity (id, connected, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		 connected = excluded.connected,
		 updated_at = excluded.updated_at`,
		connectivityKey, boolToInt(connected), nowUTC(),
	)
	if err != nil {
		return fmt.Errorf("set cluster connectivity: %w", err)
	}
	return nil
}

// openDB opens a SQLite database with standard pragmas (WAL mode, busy timeout).
func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	return db, nil
}

func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
