package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/filescan-registry/internal/models"
	"github.com/noah-isme/filescan-registry/pkg/hashtype"
)

const fileColumns = `id, sha256, sha1, md5, size, mime_type, path, created_at`

// FileRepository persists content records.
type FileRepository struct {
	db *sqlx.DB
}

// NewFileRepository constructs the repository.
func NewFileRepository(db *sqlx.DB) *FileRepository {
	return &FileRepository{db: db}
}

// GetByHash loads the record whose digest of the given type equals value.
// It returns sql.ErrNoRows when nothing matches.
func (r *FileRepository) GetByHash(ctx context.Context, hashType hashtype.Type, value string) (*models.FileRecord, error) {
	column, ok := hashType.Column()
	if !ok {
		return nil, fmt.Errorf("unsupported hash type %q", hashType)
	}
	query := fmt.Sprintf(`SELECT %s FROM files WHERE %s = $1 ORDER BY created_at LIMIT 1`, fileColumns, column)
	var record models.FileRecord
	if err := r.db.GetContext(ctx, &record, query, value); err != nil {
		return nil, err
	}
	return &record, nil
}

// Create inserts the record unless its sha256 is already known, then returns
// the stored record. Identical content therefore always maps to one row.
func (r *FileRepository) Create(ctx context.Context, record *models.FileRecord) (*models.FileRecord, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO files (id, sha256, sha1, md5, size, mime_type, path, created_at)
	VALUES (:id, :sha256, :sha1, :md5, :size, :mime_type, :path, :created_at)
	ON CONFLICT (sha256) DO NOTHING`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return nil, fmt.Errorf("create file record: %w", err)
	}
	stored, err := r.GetByHash(ctx, hashtype.SHA256, record.SHA256)
	if err != nil {
		return nil, fmt.Errorf("reload file record: %w", err)
	}
	return stored, nil
}
