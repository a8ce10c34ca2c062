package transcript

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	apperrors "github.com/Taichi-iskw/ytscribe/internal/errors"
	"github.com/Taichi-iskw/ytscribe/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS transcripts (
    id TEXT PRIMARY KEY,
    video_id TEXT NOT NULL UNIQUE,
    source_url TEXT NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    full_text TEXT NOT NULL DEFAULT '',
    segments TEXT NOT NULL DEFAULT '[]',
    source_kind TEXT NOT NULL,
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transcripts_created_at ON transcripts(created_at);
`

// sqliteRepository implements Repository using SQLite. Segments are stored
// as a JSON array alongside the transcript row.
type sqliteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a Repository backed by SQLite
func NewSQLiteRepository(db *sql.DB) Repository {
	return &sqliteRepository{db: db}
}

// EnsureSQLiteSchema creates the transcripts table if needed
func EnsureSQLiteSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return handleSQLiteError(err, "failed to begin schema transaction")
	}
	defer tx.Rollback()

	for _, stmt := range strings.Split(sqliteSchema, ";") {
		if stmt = strings.TrimSpace(stmt); stmt == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return handleSQLiteError(err, "failed to execute schema statement")
		}
	}

	if err := tx.Commit(); err != nil {
		return handleSQLiteError(err, "failed to commit schema transaction")
	}
	return nil
}

// GetByVideoID retrieves the transcript stored for a video
func (r *sqliteRepository) GetByVideoID(ctx context.Context, videoID string) (*model.Transcript, error) {
	return r.get(ctx, `SELECT id, video_id, source_url, title, full_text, segments, source_kind, created_at
		FROM transcripts WHERE video_id = ?`, videoID)
}

// GetByID retrieves a transcript by its ID
func (r *sqliteRepository) GetByID(ctx context.Context, id string) (*model.Transcript, error) {
	return r.get(ctx, `SELECT id, video_id, source_url, title, full_text, segments, source_kind, created_at
		FROM transcripts WHERE id = ?`, id)
}

func (r *sqliteRepository) get(ctx context.Context, query string, arg string) (*model.Transcript, error) {
	var (
		t        model.Transcript
		segments string
		kind     string
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&t.ID,
		&t.VideoID,
		&t.SourceURL,
		&t.Title,
		&t.FullText,
		&segments,
		&kind,
		&t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Wrap(err, apperrors.CodeNotFound, "transcript not found")
		}
		return nil, handleSQLiteError(err, "failed to get transcript")
	}
	t.SourceKind = model.SourceKind(kind)

	t.Segments = []model.Segment{}
	if err := json.Unmarshal([]byte(segments), &t.Segments); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "stored transcript segments are corrupt")
	}

	return &t, nil
}

// Create inserts the transcript unless one already exists for the video
func (r *sqliteRepository) Create(ctx context.Context, t *model.Transcript) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	segments := t.Segments
	if segments == nil {
		segments = []model.Segment{}
	}
	encoded, err := json.Marshal(segments)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to encode transcript segments")
	}

	result, err := r.db.ExecContext(ctx, `INSERT INTO transcripts
		(id, video_id, source_url, title, full_text, segments, source_kind, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(video_id) DO NOTHING`,
		t.ID,
		t.VideoID,
		t.SourceURL,
		t.Title,
		t.FullText,
		string(encoded),
		string(t.SourceKind),
		t.CreatedAt.UTC(),
	)
	if err != nil {
		return handleSQLiteError(err, "failed to create transcript")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return handleSQLiteError(err, "failed to create transcript")
	}
	if affected == 0 {
		return apperrors.New(apperrors.CodeConflict, "transcript for this video already exists")
	}
	return nil
}

func handleSQLiteError(err error, operation string) *apperrors.AppError {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch {
		case sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique,
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
			return apperrors.Wrap(err, apperrors.CodeConflict, "transcript already exists")
		case sqliteErr.Code == sqlite3.ErrBusy, sqliteErr.Code == sqlite3.ErrLocked,
			sqliteErr.Code == sqlite3.ErrCantOpen:
			return apperrors.Wrap(err, apperrors.CodeUnavailable, "database unavailable")
		}
	}
	return apperrors.Wrap(err, apperrors.CodeInternal, operation)
}
