package analytics

import (
	"context"

	"github.com/keithlinneman/splash-api/internal/xerrors"
)

// Migrate creates the event tables and indexes if they do not exist
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	for _, stmt := range s.dialect.Schema() {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return xerrors.Wrap(err, "analytics migration failed")
		}
	}
	return nil
}
