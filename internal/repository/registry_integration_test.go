package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/noah-isme/filescan-registry/internal/models"
	"github.com/noah-isme/filescan-registry/migrations"
	"github.com/noah-isme/filescan-registry/pkg/config"
	"github.com/noah-isme/filescan-registry/pkg/database"
	"github.com/noah-isme/filescan-registry/pkg/hashtype"
)

// setupPostgres starts a disposable PostgreSQL, applies the embedded
// migrations and returns a connected handle. Set TEST_INTEGRATION to run.
func setupPostgres(t *testing.T) *sqlx.DB {
	t.Helper()
	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("TEST_INTEGRATION not set")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"docker.io/postgres:16-alpine",
		postgres.WithDatabase("file_registry"),
		postgres.WithUsername("registry"),
		postgres.WithPassword("registry"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate postgres: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	cfg := config.DatabaseConfig{
		Host:     host,
		Port:     port.Int(),
		User:     "registry",
		Password: "registry",
		Name:     "file_registry",
		SSLMode:  "disable",
	}
	require.NoError(t, database.Migrate(cfg, migrations.FS, nil))

	db, err := database.NewPostgres(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

type registryFixture struct {
	files       *FileRepository
	occurrences *OccurrenceRepository
	tags        *TagRepository
	record      *models.FileRecord
	sample      *models.Occurrence
	copy        *models.Occurrence
	tagIDs      map[string]int64
}

// newRegistryFixture stores one file seen as "sample.exe" {malware, pe32}
// and "copy.exe" {pe32} in scan-1, plus an untagged "sample.exe" in scan-2.
func newRegistryFixture(t *testing.T, db *sqlx.DB) *registryFixture {
	t.Helper()
	ctx := context.Background()
	f := &registryFixture{
		files:       NewFileRepository(db),
		occurrences: NewOccurrenceRepository(db),
		tags:        NewTagRepository(db),
		tagIDs:      map[string]int64{},
	}

	record, err := f.files.Create(ctx, &models.FileRecord{
		SHA256: abcSHA256, SHA1: abcSHA1, MD5: abcMD5, Size: 3, MimeType: "text/plain", Path: "ba/" + abcSHA256,
	})
	require.NoError(t, err)
	f.record = record

	base := time.Now().UTC().Add(-time.Hour)
	f.sample = &models.Occurrence{Name: "sample.exe", ScanID: "scan-1", FileID: record.ID, CreatedAt: base}
	f.copy = &models.Occurrence{Name: "copy.exe", ScanID: "scan-1", FileID: record.ID, CreatedAt: base.Add(time.Minute)}
	rescan := &models.Occurrence{Name: "sample.exe", ScanID: "scan-2", FileID: record.ID, CreatedAt: base.Add(2 * time.Minute)}
	for _, occ := range []*models.Occurrence{f.sample, f.copy, rescan} {
		require.NoError(t, f.occurrences.Create(ctx, occ))
	}

	for _, text := range []string{"malware", "pe32", "packed"} {
		tag, err := f.tags.Ensure(ctx, text)
		require.NoError(t, err)
		f.tagIDs[text] = tag.ID
	}
	require.NoError(t, f.tags.AttachToOccurrence(ctx, f.sample.ID, f.tagIDs["malware"]))
	require.NoError(t, f.tags.AttachToOccurrence(ctx, f.sample.ID, f.tagIDs["pe32"]))
	require.NoError(t, f.tags.AttachToOccurrence(ctx, f.copy.ID, f.tagIDs["pe32"]))
	return f
}

func (f *registryFixture) search(t *testing.T, filter models.OccurrenceFilter) ([]models.Occurrence, int) {
	t.Helper()
	ctx := context.Background()
	items, err := f.occurrences.Find(ctx, filter, 0, 25)
	require.NoError(t, err)
	total, err := f.occurrences.Count(ctx, filter)
	require.NoError(t, err)
	return items, total
}

func occurrenceNames(items []models.Occurrence) []string {
	names := make([]string, 0, len(items))
	for _, item := range items {
		names = append(names, item.Name)
	}
	return names
}

func tagTexts(tags []models.Tag) []string {
	texts := make([]string, 0, len(tags))
	for _, tag := range tags {
		texts = append(texts, tag.Text)
	}
	return texts
}

func TestRegistryTagFilterIntersects(t *testing.T) {
	db := setupPostgres(t)
	f := newRegistryFixture(t, db)

	items, total := f.search(t, models.OccurrenceFilter{Tags: []string{"pe32"}, DistinctName: true})
	assert.Equal(t, 2, total)
	assert.ElementsMatch(t, []string{"sample.exe", "copy.exe"}, occurrenceNames(items))

	items, total = f.search(t, models.OccurrenceFilter{Tags: []string{"malware", "pe32"}, DistinctName: true})
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, f.sample.ID, items[0].ID)
	assert.Equal(t, []string{"malware", "pe32"}, tagTexts(items[0].Tags))

	_, total = f.search(t, models.OccurrenceFilter{Tags: []string{"pe32", "pe32", " "}, DistinctName: true})
	assert.Equal(t, 2, total, "duplicate and blank labels collapse")

	_, total = f.search(t, models.OccurrenceFilter{Tags: []string{"malware", "unknown"}, DistinctName: true})
	assert.Zero(t, total)
}

func TestRegistrySearchDeduplicatesNames(t *testing.T) {
	db := setupPostgres(t)
	f := newRegistryFixture(t, db)

	empty := ""
	items, total := f.search(t, models.OccurrenceFilter{Name: &empty, DistinctName: true})
	assert.Equal(t, 2, total)
	assert.Equal(t, []string{"copy.exe", "sample.exe"}, occurrenceNames(items))
	assert.Equal(t, "scan-2", items[1].ScanID, "newest occurrence per name wins")

	byHash := models.OccurrenceFilter{HashType: hashtype.MD5, HashValue: abcMD5, DistinctName: true}
	_, total = f.search(t, byHash)
	assert.Equal(t, 2, total)

	byHash.DistinctName = false
	items, total = f.search(t, byHash)
	assert.Equal(t, 3, total)
	assert.Len(t, items, 3)

	pattern := "e%e"
	_, total = f.search(t, models.OccurrenceFilter{Name: &pattern, DistinctName: true})
	assert.Zero(t, total, "LIKE wildcards in names are literal")
}

func TestRegistryAddThenRemoveTagRestoresTags(t *testing.T) {
	db := setupPostgres(t)
	f := newRegistryFixture(t, db)
	ctx := context.Background()
	filter := models.OccurrenceFilter{HashType: hashtype.SHA256, HashValue: abcSHA256}

	tagsByOccurrence := func() map[string][]string {
		items, _ := f.search(t, filter)
		result := make(map[string][]string, len(items))
		for _, item := range items {
			result[item.ID] = tagTexts(item.Tags)
		}
		return result
	}
	before := tagsByOccurrence()

	require.NoError(t, f.tags.AttachToFile(ctx, f.record.ID, f.tagIDs["packed"]))
	_, total := f.search(t, models.OccurrenceFilter{Tags: []string{"packed"}})
	assert.Equal(t, 3, total, "file level tag reaches every occurrence")

	require.NoError(t, f.tags.DetachFromFile(ctx, f.record.ID, f.tagIDs["packed"]))
	assert.Equal(t, before, tagsByOccurrence())

	require.NoError(t, f.tags.DetachFromFile(ctx, f.record.ID, f.tagIDs["packed"]), "removing an absent tag is a no-op")
	assert.Equal(t, before, tagsByOccurrence())
}

func TestRegistryCreateIsContentAddressed(t *testing.T) {
	db := setupPostgres(t)
	f := newRegistryFixture(t, db)

	again, err := f.files.Create(context.Background(), &models.FileRecord{
		SHA256: abcSHA256, SHA1: abcSHA1, MD5: abcMD5, Size: 3, Path: "ba/" + abcSHA256,
	})
	require.NoError(t, err)
	assert.Equal(t, f.record.ID, again.ID)

	var rows int
	require.NoError(t, db.Get(&rows, `SELECT COUNT(*) FROM files`))
	assert.Equal(t, 1, rows)
}
