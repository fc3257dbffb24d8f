package dbsession

import (
	"context"
	"database/sql"
)

// StreamQuery runs query and calls fn once per result row, with every
// column converted to its driver-default string form and a Valid flag
// distinguishing a true SQL NULL (Valid false) from an empty string
// (Valid true, String ""). It is the one seam the Worker and Chunker
// need onto a live connection, narrow enough to fake in tests without a
// real database.
func (s *Session) StreamQuery(ctx context.Context, query string, args []interface{}, fn func(row []sql.NullString) error) error {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	raw := make([]sql.RawBytes, len(cols))
	dest := make([]interface{}, len(cols))
	for i := range raw {
		dest[i] = &raw[i]
	}

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return err
		}
		row := make([]sql.NullString, len(cols))
		for i, r := range raw {
			if r != nil {
				row[i] = sql.NullString{String: string(r), Valid: true}
			}
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Select implements cache.Querier and schemadump.Querier against this
// session, used by the Instance Cache and Schema Dumper's bulk reads.
func (s *Session) Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return s.conn.SelectContext(ctx, dest, query, args...)
}

// Get implements schemadump.Querier's single-row reads (SHOW CREATE ...).
func (s *Session) Get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return s.conn.GetContext(ctx, dest, query, args...)
}
