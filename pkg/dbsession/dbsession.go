// Package dbsession wraps the primary and Worker MySQL connections,
// generalized from the teacher's pkg/clickhouse Connect()/GetConn()
// pattern (DSN built from url.Values, sqlx.Open, conn.Ping) to MySQL via
// go-sql-driver, plus the session setup, snapshot and locking primitives
// the Coordinator and Workers need.
package dbsession

import (
	"context"
	"fmt"
	"net/url"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// Config is the connection configuration shared by the primary session
// and every Worker session spun up against the same server.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	Secure   bool
	Timeout  time.Duration
}

// Session wraps one sqlx.DB connection plus the auxiliary connection ID
// used to issue KILL QUERY against it from another session.
type Session struct {
	conn         *sqlx.DB
	connectionID int64
	inSnapshot   bool
}

// Connect opens a new session and applies the dump-specific session
// setup: SQL mode cleared, UTC time zone, generous timeouts, matching the
// teacher's Connect() DSN-building shape.
func Connect(ctx context.Context, cfg Config, utcTimeZone bool) (*Session, error) {
	params := url.Values{}
	params.Add("timeout", cfg.Timeout.String())
	params.Add("readTimeout", (24 * time.Hour).String())
	params.Add("writeTimeout", (30 * time.Minute).String())
	params.Add("interpolateParams", "true")
	if cfg.Secure {
		params.Add("tls", "preferred")
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/?%s", cfg.Username, cfg.Password, cfg.Host, cfg.Port, params.Encode())
	conn, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(1)
	if err := conn.PingContext(ctx); err != nil {
		return nil, err
	}
	s := &Session{conn: conn}
	if err := s.setup(ctx, utcTimeZone); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := s.conn.GetContext(ctx, &s.connectionID, "SELECT CONNECTION_ID()"); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

// setup applies the session variables a long-lived dump connection needs:
// cleared SQL mode, UTF-8 client charset, a one-year wait_timeout and a
// 30-minute net_write_timeout so a slow Writer never drops the connection.
func (s *Session) setup(ctx context.Context, utcTimeZone bool) error {
	stmts := []string{
		"SET SESSION sql_mode=''",
		"SET NAMES utf8mb4",
		"SET SESSION wait_timeout=31536000",
		"SET SESSION net_write_timeout=1800",
		"SET SESSION net_read_timeout=1800",
		"SET SESSION max_execution_time=0",
	}
	if utcTimeZone {
		stmts = append(stmts, "SET SESSION time_zone='+00:00'")
	}
	for _, stmt := range stmts {
		if _, err := s.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("dbsession: session setup %q: %w", stmt, err)
		}
	}
	return nil
}

// DB returns the underlying sqlx handle for callers (Instance Cache,
// Schema Dumper, Worker row streaming) that need raw Select/Query access.
func (s *Session) DB() *sqlx.DB { return s.conn }

// ConnectionID is this session's SHOW PROCESSLIST id, used by a separate
// auxiliary session to issue KILL QUERY against it.
func (s *Session) ConnectionID() int64 { return s.connectionID }

// BeginConsistentSnapshot starts a REPEATABLE READ transaction anchored to
// a consistent snapshot, required when the job's consistency flag is set.
// It must be called while the global read lock (or the Coordinator's
// fallback table locks) is still held.
func (s *Session) BeginConsistentSnapshot(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, "SET SESSION TRANSACTION ISOLATION LEVEL REPEATABLE READ"); err != nil {
		return err
	}
	if _, err := s.conn.ExecContext(ctx, "START TRANSACTION WITH CONSISTENT SNAPSHOT"); err != nil {
		return err
	}
	s.inSnapshot = true
	return nil
}

// InSnapshot reports whether this session is holding an open
// consistent-snapshot transaction.
func (s *Session) InSnapshot() bool { return s.inSnapshot }

// Close releases the underlying connection. Idempotent-safe to call on an
// already-failed Connect only if conn is non-nil; callers that get an
// error from Connect never receive a Session to Close.
func (s *Session) Close() error { return s.conn.Close() }

// GTIDExecuted reads @@GLOBAL.gtid_executed for the manifest's captured
// GTID field.
func (s *Session) GTIDExecuted(ctx context.Context) (string, error) {
	var gtid string
	err := s.conn.GetContext(ctx, &gtid, "SELECT @@GLOBAL.gtid_executed")
	return gtid, err
}

// ServerIdentity reports the fields the @.json manifest records about the
// server this dump was taken from.
type ServerIdentity struct {
	User    string `db:"user"`
	Host    string `db:"host"`
	Server  string `db:"server"`
	Version string `db:"version"`
}

func (s *Session) ServerVersion(ctx context.Context) (string, error) {
	var version string
	err := s.conn.GetContext(ctx, &version, "SELECT VERSION()")
	return version, err
}
