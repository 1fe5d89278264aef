package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/filescan-registry/internal/models"
)

// OccurrenceRepository indexes named appearances of files within scans.
type OccurrenceRepository struct {
	db *sqlx.DB
}

// NewOccurrenceRepository constructs the repository.
func NewOccurrenceRepository(db *sqlx.DB) *OccurrenceRepository {
	return &OccurrenceRepository{db: db}
}

// Create records a new occurrence.
func (r *OccurrenceRepository) Create(ctx context.Context, occ *models.Occurrence) error {
	if occ.ID == "" {
		occ.ID = uuid.NewString()
	}
	if occ.CreatedAt.IsZero() {
		occ.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO occurrences (id, name, scan_id, file_id, created_at)
	VALUES (:id, :name, :scan_id, :file_id, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, occ); err != nil {
		return fmt.Errorf("create occurrence: %w", err)
	}
	return nil
}

// Find returns one page of occurrences matching filter, tags included.
func (r *OccurrenceRepository) Find(ctx context.Context, filter models.OccurrenceFilter, offset, limit int) ([]models.Occurrence, error) {
	query, args, err := buildOccurrenceQuery(filter)
	if err != nil {
		return nil, err
	}
	builder := strings.Builder{}
	builder.WriteString(query)
	if filter.DistinctName {
		builder.WriteString(" ORDER BY o.name, o.created_at DESC")
	} else {
		builder.WriteString(" ORDER BY o.created_at DESC, o.id")
	}
	args = append(args, limit, offset)
	builder.WriteString(fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args)))

	items := make([]models.Occurrence, 0)
	if err := r.db.SelectContext(ctx, &items, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("find occurrences: %w", err)
	}
	if err := r.attachTags(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

// Count returns how many occurrences match filter.
func (r *OccurrenceRepository) Count(ctx context.Context, filter models.OccurrenceFilter) (int, error) {
	query, args, err := buildOccurrenceQuery(filter)
	if err != nil {
		return 0, err
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM ("+query+") AS matches", args...); err != nil {
		return 0, fmt.Errorf("count occurrences: %w", err)
	}
	return total, nil
}

type occurrenceTagRow struct {
	OccurrenceID string `db:"occurrence_id"`
	ID           int64  `db:"id"`
	Text         string `db:"text"`
}

func (r *OccurrenceRepository) attachTags(ctx context.Context, items []models.Occurrence) error {
	if len(items) == 0 {
		return nil
	}
	ids := make([]string, len(items))
	for i := range items {
		ids[i] = items[i].ID
		items[i].Tags = []models.Tag{}
	}
	const query = `SELECT ot.occurrence_id, t.id, t.text
	FROM occurrence_tags ot JOIN tags t ON t.id = ot.tag_id
	WHERE ot.occurrence_id = ANY($1) ORDER BY t.text`
	var rows []occurrenceTagRow
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("load occurrence tags: %w", err)
	}
	index := make(map[string]int, len(items))
	for i := range items {
		index[items[i].ID] = i
	}
	for _, row := range rows {
		if i, ok := index[row.OccurrenceID]; ok {
			items[i].Tags = append(items[i].Tags, models.Tag{ID: row.ID, Text: row.Text})
		}
	}
	return nil
}

// buildOccurrenceQuery renders the filtered select without ordering or paging.
// Tag filtering keeps only occurrences holding every requested label.
func buildOccurrenceQuery(filter models.OccurrenceFilter) (string, []interface{}, error) {
	builder := strings.Builder{}
	if filter.DistinctName {
		builder.WriteString("SELECT DISTINCT ON (o.name) ")
	} else {
		builder.WriteString("SELECT ")
	}
	builder.WriteString(`o.id, o.name, o.scan_id, o.file_id, f.sha256, f.size, o.created_at
	FROM occurrences o JOIN files f ON f.id = o.file_id`)

	args := make([]interface{}, 0, 4)
	conditions := make([]string, 0, 2)

	if filter.HashType != "" {
		column, ok := filter.HashType.Column()
		if !ok {
			return "", nil, fmt.Errorf("unsupported hash type %q", filter.HashType)
		}
		args = append(args, strings.ToLower(filter.HashValue))
		conditions = append(conditions, fmt.Sprintf("f.%s = $%d", column, len(args)))
	} else if filter.Name != nil && *filter.Name != "" {
		args = append(args, "%"+escapeLike(*filter.Name)+"%")
		conditions = append(conditions, fmt.Sprintf(`o.name LIKE $%d ESCAPE '\'`, len(args)))
	}

	if tags := normalizeTags(filter.Tags); len(tags) > 0 {
		args = append(args, pq.Array(tags))
		arrayPos := len(args)
		args = append(args, len(tags))
		conditions = append(conditions, fmt.Sprintf(`o.id IN (SELECT ot.occurrence_id FROM occurrence_tags ot
		JOIN tags t ON t.id = ot.tag_id WHERE t.text = ANY($%d)
		GROUP BY ot.occurrence_id HAVING COUNT(DISTINCT t.text) = $%d)`, arrayPos, len(args)))
	}

	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	return builder.String(), args, nil
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	result := make([]string, 0, len(tags))
	for _, tag := range tags {
		trimmed := strings.TrimSpace(tag)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}

func escapeLike(raw string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(raw)
}
