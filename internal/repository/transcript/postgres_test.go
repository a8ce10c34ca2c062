package transcript

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Taichi-iskw/ytscribe/internal/errors"
	"github.com/Taichi-iskw/ytscribe/internal/model"
)

const testTranscriptID = "5f1c7c43-3d5b-4c1e-9f0e-2b7d3f3a9c11"

var (
	transcriptCols = []string{"id", "video_id", "source_url", "title", "full_text", "source_kind", "created_at"}
	segmentCols    = []string{"text", "offset_ms", "duration_ms"}
	copyCols       = []string{"transcript_id", "segment_index", "text", "offset_ms", "duration_ms"}
)

func newTestTranscript() *model.Transcript {
	return &model.Transcript{
		ID:         testTranscriptID,
		VideoID:    "dQw4w9WgXcQ",
		SourceURL:  "https://youtu.be/dQw4w9WgXcQ",
		Title:      "Test Video",
		FullText:   "hello world",
		SourceKind: model.SourceKindScrape,
		Segments: []model.Segment{
			{Text: "hello", OffsetMs: 0, DurationMs: 1000},
			{Text: "world", OffsetMs: 1000, DurationMs: 1000},
		},
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestPostgresRepository_GetByVideoID(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		setup    func(mock pgxmock.PgxPoolIface)
		want     *model.Transcript
		wantCode string
	}{
		{
			name: "found with segments in index order",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery("SELECT (.+) FROM transcripts WHERE video_id").
					WithArgs("dQw4w9WgXcQ").
					WillReturnRows(pgxmock.NewRows(transcriptCols).AddRow(
						testTranscriptID, "dQw4w9WgXcQ", "https://youtu.be/dQw4w9WgXcQ", "Test Video",
						"hello world", "scrape", created,
					))
				mock.ExpectQuery("SELECT (.+) FROM transcript_segments").
					WithArgs(testTranscriptID).
					WillReturnRows(pgxmock.NewRows(segmentCols).
						AddRow("hello", int64(0), int64(1000)).
						AddRow("world", int64(1000), int64(1000)))
			},
			want: newTestTranscript(),
		},
		{
			name: "found without segments",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery("SELECT (.+) FROM transcripts WHERE video_id").
					WithArgs("dQw4w9WgXcQ").
					WillReturnRows(pgxmock.NewRows(transcriptCols).AddRow(
						testTranscriptID, "dQw4w9WgXcQ", "https://youtu.be/dQw4w9WgXcQ", "Test Video",
						"", "ai", created,
					))
				mock.ExpectQuery("SELECT (.+) FROM transcript_segments").
					WithArgs(testTranscriptID).
					WillReturnRows(pgxmock.NewRows(segmentCols))
			},
			want: &model.Transcript{
				ID:         testTranscriptID,
				VideoID:    "dQw4w9WgXcQ",
				SourceURL:  "https://youtu.be/dQw4w9WgXcQ",
				Title:      "Test Video",
				SourceKind: model.SourceKindAI,
				Segments:   []model.Segment{},
				CreatedAt:  created,
			},
		},
		{
			name: "not found",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery("SELECT (.+) FROM transcripts WHERE video_id").
					WithArgs("dQw4w9WgXcQ").
					WillReturnError(pgx.ErrNoRows)
			},
			wantCode: apperrors.CodeNotFound,
		},
		{
			name: "connection failure is unavailable",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery("SELECT (.+) FROM transcripts WHERE video_id").
					WithArgs("dQw4w9WgXcQ").
					WillReturnError(&pgconn.PgError{Code: "08006"})
			},
			wantCode: apperrors.CodeUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			tt.setup(mock)

			repo := NewPostgresRepository(mock)
			got, err := repo.GetByVideoID(context.Background(), "dQw4w9WgXcQ")

			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, apperrors.CodeOf(err))
				assert.Nil(t, got)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}

			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresRepository_GetByID(t *testing.T) {
	t.Run("malformed id never hits the database", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPostgresRepository(mock)
		_, err = repo.GetByID(context.Background(), "not-a-uuid")

		assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery("SELECT (.+) FROM transcripts WHERE id").
			WithArgs(testTranscriptID).
			WillReturnError(pgx.ErrNoRows)

		repo := NewPostgresRepository(mock)
		_, err = repo.GetByID(context.Background(), testTranscriptID)

		assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresRepository_Create(t *testing.T) {
	insertArgs := []any{
		pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
		pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
	}

	tests := []struct {
		name       string
		transcript *model.Transcript
		setup      func(mock pgxmock.PgxPoolIface)
		wantCode   string
	}{
		{
			name:       "successful creation",
			transcript: newTestTranscript(),
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectBegin()
				mock.ExpectExec("INSERT INTO transcripts").
					WithArgs(insertArgs...).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
				mock.ExpectCopyFrom(pgx.Identifier{"transcript_segments"}, copyCols).
					WillReturnResult(2)
				mock.ExpectCommit()
			},
		},
		{
			name: "empty transcript skips segment copy",
			transcript: func() *model.Transcript {
				tr := newTestTranscript()
				tr.Segments = nil
				return tr
			}(),
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectBegin()
				mock.ExpectExec("INSERT INTO transcripts").
					WithArgs(insertArgs...).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
				mock.ExpectCommit()
			},
		},
		{
			name:       "existing video is a conflict",
			transcript: newTestTranscript(),
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectBegin()
				mock.ExpectExec("INSERT INTO transcripts").
					WithArgs(insertArgs...).
					WillReturnResult(pgxmock.NewResult("INSERT", 0))
				mock.ExpectRollback()
			},
			wantCode: apperrors.CodeConflict,
		},
		{
			name:       "segment copy failure rolls back",
			transcript: newTestTranscript(),
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectBegin()
				mock.ExpectExec("INSERT INTO transcripts").
					WithArgs(insertArgs...).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
				mock.ExpectCopyFrom(pgx.Identifier{"transcript_segments"}, copyCols).
					WillReturnError(assert.AnError)
				mock.ExpectRollback()
			},
			wantCode: apperrors.CodeInternal,
		},
		{
			name:       "begin failure",
			transcript: newTestTranscript(),
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectBegin().WillReturnError(&pgconn.PgError{Code: "53300"})
			},
			wantCode: apperrors.CodeUnavailable,
		},
		{
			name: "malformed id is rejected",
			transcript: func() *model.Transcript {
				tr := newTestTranscript()
				tr.ID = "abc"
				return tr
			}(),
			setup:    func(mock pgxmock.PgxPoolIface) {},
			wantCode: apperrors.CodeInvalidArg,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			tt.setup(mock)

			repo := NewPostgresRepository(mock)
			err = repo.Create(context.Background(), tt.transcript)

			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, apperrors.CodeOf(err))
			} else {
				assert.NoError(t, err)
			}

			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresRepository_CreateAssignsID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO transcripts").
		WithArgs(pgxmock.AnyArg(), "dQw4w9WgXcQ", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "ai", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	tr := &model.Transcript{VideoID: "dQw4w9WgXcQ", SourceKind: model.SourceKindAI, CreatedAt: time.Now()}
	err = NewPostgresRepository(mock).Create(context.Background(), tr)

	require.NoError(t, err)
	assert.Len(t, tr.ID, 36)
	require.NoError(t, mock.ExpectationsWereMet())
}
