package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/filescan-registry/internal/models"
)

func TestTagRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, text FROM tags ORDER BY text")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "text"}).AddRow(1, "malware").AddRow(2, "pdf"))

	tags, err := NewTagRepository(db).List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.Tag{{ID: 1, Text: "malware"}, {ID: 2, Text: "pdf"}}, tags)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTagRepositoryEnsure(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO tags (text) VALUES ($1)")).
		WithArgs("malware").
		WillReturnRows(sqlmock.NewRows([]string{"id", "text"}).AddRow(7, "malware"))

	tag, err := NewTagRepository(db).Ensure(context.Background(), "  malware ")
	require.NoError(t, err)
	assert.EqualValues(t, 7, tag.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTagRepositoryAttachToFileCommits(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM tags WHERE id = $1")).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO occurrence_tags (occurrence_id, tag_id)")).
		WithArgs("file-1", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, NewTagRepository(db).AttachToFile(context.Background(), "file-1", 3))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTagRepositoryUnknownTagRollsBack(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM tags WHERE id = $1")).
		WithArgs(int64(99)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := NewTagRepository(db).DetachFromFile(context.Background(), "file-1", 99)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTagRepositoryOccurrenceVariantsCheckOccurrence(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM tags WHERE id = $1")).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM occurrences WHERE id = $1")).
		WithArgs("occ-404").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := NewTagRepository(db).AttachToOccurrence(context.Background(), "occ-404", 3)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM tags WHERE id = $1")).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM occurrences WHERE id = $1")).
		WithArgs("occ-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("occ-1"))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM occurrence_tags WHERE occurrence_id = $1 AND tag_id = $2")).
		WithArgs("occ-1", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, NewTagRepository(db).DetachFromOccurrence(context.Background(), "occ-1", 3))
	require.NoError(t, mock.ExpectationsWereMet())
}
