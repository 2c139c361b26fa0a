package file

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mkrupp/homecase-filevault/internal/domain"
	"github.com/mkrupp/homecase-filevault/internal/infra/database"
	"github.com/mkrupp/homecase-filevault/internal/infra/logging"
)

// ErrOwnerNotFound is returned by Create when the owner id references no user.
var ErrOwnerNotFound = errors.New("owner not found")

// SQLiteFileRepository implements Repository on the shared SQLite database.
type SQLiteFileRepository struct {
	db  *database.DB
	log logging.Logger
}

var _ Repository = (*SQLiteFileRepository)(nil)

// NewSQLiteFileRepository creates a new SQLiteFileRepository on an opened,
// migrated database.
func NewSQLiteFileRepository(db *database.DB) *SQLiteFileRepository {
	return &SQLiteFileRepository{
		db:  db,
		log: logging.GetLogger("repo.file.sqlite_file_repository"),
	}
}

// Create implements Repository.Create using SQLite.
func (r *SQLiteFileRepository) Create(
	ctx context.Context,
	filename string,
	storagePath string,
	ownerID domain.UserID,
	size int64,
) (domain.FileID, error) {
	unlock := r.db.LockWrite()
	defer unlock()

	res, err := r.db.ExecContext(ctx,
		"INSERT INTO files (filename, storage_path, owner_id, size, created_at) VALUES (?, ?, ?, ?, ?)",
		filename,
		storagePath,
		ownerID,
		size,
		time.Now().Unix(),
	)
	if err != nil {
		var liteErr *sqlite.Error
		if errors.As(err, &liteErr) {
			switch liteErr.Code() {
			case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
				err = errors.Join(ErrOwnerNotFound, err)
			case sqlite3.SQLITE_CONSTRAINT_UNIQUE:
				err = errors.Join(domain.ErrNameCollision, err)
			}
		}

		return 0, fmt.Errorf("insert file: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}

	r.log.DebugContext(ctx, "file record created", logging.Group("file",
		"id", id,
		"owner", ownerID,
	))

	return domain.FileID(id), nil
}

// Get implements Repository.Get using SQLite.
func (r *SQLiteFileRepository) Get(ctx context.Context, id domain.FileID) (*domain.FileRecord, error) {
	var record domain.FileRecord

	err := r.db.GetContext(ctx, &record,
		"SELECT id, filename, storage_path, owner_id, size, created_at FROM files WHERE id = ?",
		id,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = errors.Join(domain.ErrFileNotFound, err)
		}

		return nil, fmt.Errorf("query file: %w", err)
	}

	return &record, nil
}

// ListByOwner implements Repository.ListByOwner using SQLite.
func (r *SQLiteFileRepository) ListByOwner(ctx context.Context, ownerID domain.UserID) ([]domain.FileRecord, error) {
	records := []domain.FileRecord{}

	err := r.db.SelectContext(ctx, &records,
		"SELECT id, filename, storage_path, owner_id, size, created_at FROM files WHERE owner_id = ? ORDER BY id",
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("query files: %w", err)
	}

	return records, nil
}

// Delete implements Repository.Delete using SQLite.
// A single DELETE statement decides the outcome, so of two concurrent
// deletes of one id exactly one succeeds.
func (r *SQLiteFileRepository) Delete(ctx context.Context, id domain.FileID) error {
	unlock := r.db.LockWrite()
	defer unlock()

	res, err := r.db.ExecContext(ctx, "DELETE FROM files WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	} else if n == 0 {
		return fmt.Errorf("delete file %d: %w", id, domain.ErrFileNotFound)
	}

	r.log.DebugContext(ctx, "file record deleted", logging.Group("file", "id", id))

	return nil
}
