package analytics

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/keithlinneman/splash-api/internal/xerrors"
)

const (
	driverPgx    = "pgx"
	driverLibsql = "libsql"
)

// ErrNotInitialized is returned by every operation on a nil or closed Store
var ErrNotInitialized = errors.New("analytics store is not initialized")

// Config selects the database. Driver is pgx or libsql, "postgres" and "sqlite" are accepted aliases.
type Config struct {
	Driver    string
	DSN       string
	AuthToken string

	MaxOpenConns    int
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// Store is the analytics persistence layer
type Store struct {
	DB      *sql.DB
	dialect Dialect
}

// Open connects and pings, it does not migrate
func Open(ctx context.Context, cfg Config) (*Store, error) {
	driver, err := normalizeDriver(cfg.Driver)
	if err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		dsn     string
		dialect Dialect
	)
	switch driver {
	case driverPgx:
		dsn = strings.TrimSpace(cfg.DSN)
		if dsn == "" {
			return nil, xerrors.New("postgres dsn is required")
		}
		dialect = postgresDialect{}
	case driverLibsql:
		dsn, err = buildLibsqlDSN(cfg.DSN, cfg.AuthToken)
		if err != nil {
			return nil, err
		}
		dialect = sqliteDialect{}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, xerrors.Wrapf(err, "open %s store", driver)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 20
	}
	if driver == driverLibsql && dsn == ":memory:" {
		// every connection to :memory: is a separate database
		maxOpen = 1
	}
	db.SetMaxOpenConns(maxOpen)
	idle := cfg.ConnMaxIdleTime
	if idle <= 0 {
		idle = 30 * time.Second
	}
	db.SetConnMaxIdleTime(idle)

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, xerrors.Wrapf(err, "ping %s store", driver)
	}

	return &Store{DB: db, dialect: dialect}, nil
}

// Close releases database resources
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// Driver returns the resolved driver name
func (s *Store) Driver() string {
	if s == nil || s.dialect == nil {
		return ""
	}
	return s.dialect.Name()
}

// Ping is the readiness check
func (s *Store) Ping(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.DB.PingContext(ctx)
}

func (s *Store) ready() error {
	if s == nil || s.DB == nil || s.dialect == nil {
		return ErrNotInitialized
	}
	return nil
}

func (s *Store) q(query string) string { return s.dialect.Rebind(query) }

func normalizeDriver(d string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(d)) {
	case "", driverLibsql, "sqlite", "sqlite3":
		return driverLibsql, nil
	case driverPgx, "postgres", "postgresql":
		return driverPgx, nil
	default:
		return "", xerrors.Newf("unsupported store driver: %s", d)
	}
}

func buildLibsqlDSN(raw, token string) (string, error) {
	dsn := strings.TrimSpace(raw)
	if dsn == "" {
		return "", xerrors.New("store path or url is required")
	}

	if dsn == ":memory:" {
		return dsn, nil
	}

	if strings.HasPrefix(dsn, "libsql:") || strings.HasPrefix(dsn, "https:") || strings.HasPrefix(dsn, "http:") {
		return addAuthToken(dsn, token)
	}

	if strings.HasPrefix(dsn, "file:") {
		localPath, err := extractFilePath(dsn)
		if err != nil {
			return "", err
		}
		if err := ensureStoreDir(localPath); err != nil {
			return "", err
		}
		return dsn, nil
	}

	if err := ensureStoreDir(dsn); err != nil {
		return "", err
	}
	return "file:" + filepath.Clean(dsn), nil
}

func addAuthToken(dsn, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return dsn, nil
	}

	parsed, err := url.Parse(dsn)
	if err != nil {
		return "", xerrors.Wrap(err, "invalid store url")
	}

	query := parsed.Query()
	if query.Get("authToken") == "" {
		query.Set("authToken", token)
		parsed.RawQuery = query.Encode()
	}
	return parsed.String(), nil
}

func extractFilePath(dsn string) (string, error) {
	parsed, err := url.Parse(dsn)
	if err != nil {
		return "", xerrors.Wrap(err, "invalid store path")
	}
	if parsed.Path != "" {
		return strings.TrimPrefix(parsed.Path, "//"), nil
	}
	return strings.TrimPrefix(parsed.Opaque, "//"), nil
}

func ensureStoreDir(path string) error {
	if strings.TrimSpace(path) == "" || path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(filepath.Clean(path))
	if dir == "." || dir == string(filepath.Separator) {
		return nil
	}
	// #nosec G301 -- data directory, not secret material
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return xerrors.Wrap(err, "create store directory")
	}
	return nil
}
