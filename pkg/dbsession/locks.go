package dbsession

import (
	"context"
	"fmt"
	"strings"
)

// GlobalLock acquires the strong global read lock ("flush tables with
// read lock"). Callers fall back to TableLocks when this fails, typically
// due to insufficient privileges on a managed/cloud server.
func (s *Session) GlobalLock(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, "FLUSH TABLES WITH READ LOCK"); err != nil {
		return fmt.Errorf("dbsession: global lock denied: %w", err)
	}
	return nil
}

// TableLocks acquires explicit table-level read locks on exactly the
// given tables, batched so the LOCK TABLES statement stays under the
// server's max_allowed_packet. batchSize is the number of tables per
// statement. The Coordinator's fallback passes only the in-scope tables;
// system catalog tables are not locked.
func (s *Session) TableLocks(ctx context.Context, tables []string, batchSize int) error {
	if batchSize <= 0 {
		batchSize = 200
	}
	for start := 0; start < len(tables); start += batchSize {
		end := start + batchSize
		if end > len(tables) {
			end = len(tables)
		}
		stmt := "LOCK TABLES "
		for i, t := range tables[start:end] {
			if i > 0 {
				stmt += ", "
			}
			stmt += t + " READ"
		}
		if _, err := s.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("dbsession: table lock denied: %w", err)
		}
	}
	return nil
}

// Unlock releases whatever lock GlobalLock or TableLocks most recently
// acquired on this session.
func (s *Session) Unlock(ctx context.Context) error {
	_, err := s.conn.ExecContext(ctx, "UNLOCK TABLES")
	return err
}

// BackupLock acquires a lightweight DDL-stability lock on servers that
// support LOCK INSTANCE FOR BACKUP (MySQL 8.0.16+ / compatible forks).
// Failure is best-effort: the caller logs a warning and proceeds without
// it on older servers.
func (s *Session) BackupLock(ctx context.Context) error {
	_, err := s.conn.ExecContext(ctx, "LOCK INSTANCE FOR BACKUP")
	return err
}

func (s *Session) BackupUnlock(ctx context.Context) error {
	_, err := s.conn.ExecContext(ctx, "UNLOCK INSTANCE")
	return err
}

// HasPrivilege reports whether any of the current session's SHOW GRANTS
// lines names privilege or "ALL PRIVILEGES", whatever that grant's scope.
// Used during validation to check for EVENT/TRIGGER before DUMPING
// begins rather than letting a denied SHOW CREATE fail mid-dump.
func (s *Session) HasPrivilege(ctx context.Context, privilege string) (bool, error) {
	var grants []string
	if err := s.conn.SelectContext(ctx, &grants, "SHOW GRANTS"); err != nil {
		return false, fmt.Errorf("dbsession: show grants: %w", err)
	}
	for _, g := range grants {
		if containsPrivilege(g, privilege) {
			return true, nil
		}
	}
	return false, nil
}

func containsPrivilege(grant, privilege string) bool {
	upper := strings.ToUpper(grant)
	return strings.Contains(upper, "ALL PRIVILEGES") || strings.Contains(upper, strings.ToUpper(privilege))
}

// KillQuery issues a best-effort KILL QUERY against the given connection
// ID, using this session as the auxiliary connection. Errors are
// non-fatal to the caller; the target session may have already finished.
func (s *Session) KillQuery(ctx context.Context, targetConnectionID int64) error {
	_, err := s.conn.ExecContext(ctx, fmt.Sprintf("KILL QUERY %d", targetConnectionID))
	return err
}
