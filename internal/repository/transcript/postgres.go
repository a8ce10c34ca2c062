package transcript

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	apperrors "github.com/Taichi-iskw/ytscribe/internal/errors"
	"github.com/Taichi-iskw/ytscribe/internal/model"
	"github.com/Taichi-iskw/ytscribe/internal/repository/common"
)

// Pool interface for abstracting pgx connection pool
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

const transcriptColumns = `id::text, video_id, source_url, title, full_text, source_kind, created_at`

// postgresRepository implements Repository using PostgreSQL
type postgresRepository struct {
	pool Pool
}

// NewPostgresRepository creates a Repository backed by PostgreSQL
func NewPostgresRepository(pool Pool) Repository {
	return &postgresRepository{pool: pool}
}

// GetByVideoID retrieves the transcript stored for a video
func (r *postgresRepository) GetByVideoID(ctx context.Context, videoID string) (*model.Transcript, error) {
	sql := `SELECT ` + transcriptColumns + ` FROM transcripts WHERE video_id = $1`
	return r.get(ctx, sql, videoID)
}

// GetByID retrieves a transcript by its ID
func (r *postgresRepository) GetByID(ctx context.Context, id string) (*model.Transcript, error) {
	// ids are UUIDs; anything else can never match
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "transcript not found")
	}
	sql := `SELECT ` + transcriptColumns + ` FROM transcripts WHERE id = $1`
	return r.get(ctx, sql, id)
}

func (r *postgresRepository) get(ctx context.Context, sql string, arg string) (*model.Transcript, error) {
	var t model.Transcript
	var kind string
	err := r.pool.QueryRow(ctx, sql, arg).Scan(
		&t.ID,
		&t.VideoID,
		&t.SourceURL,
		&t.Title,
		&t.FullText,
		&kind,
		&t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.Wrap(err, apperrors.CodeNotFound, "transcript not found")
		}
		return nil, common.HandlePostgreSQLError(err, "failed to get transcript")
	}
	t.SourceKind = model.SourceKind(kind)

	segments, err := r.segments(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	t.Segments = segments

	return &t, nil
}

func (r *postgresRepository) segments(ctx context.Context, transcriptID string) ([]model.Segment, error) {
	sql := `SELECT text, offset_ms, duration_ms
		FROM transcript_segments
		WHERE transcript_id = $1
		ORDER BY segment_index`

	rows, err := r.pool.Query(ctx, sql, transcriptID)
	if err != nil {
		return nil, common.HandlePostgreSQLError(err, "failed to get transcript segments")
	}
	defer rows.Close()

	segments := []model.Segment{}
	for rows.Next() {
		var s model.Segment
		if err := rows.Scan(&s.Text, &s.OffsetMs, &s.DurationMs); err != nil {
			return nil, common.HandlePostgreSQLError(err, "failed to scan transcript segment")
		}
		segments = append(segments, s)
	}
	if err := rows.Err(); err != nil {
		return nil, common.HandlePostgreSQLError(err, "failed to read transcript segments")
	}

	return segments, nil
}

// Create inserts the transcript and its segments in one transaction. The
// unique video_id constraint makes the insert the only arbiter between
// concurrent writers.
func (r *postgresRepository) Create(ctx context.Context, t *model.Transcript) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	id, err := uuid.Parse(t.ID)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInvalidArg, "transcript ID must be a UUID")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return common.HandlePostgreSQLError(err, "failed to begin transaction")
	}

	sql := `INSERT INTO transcripts
		(id, video_id, source_url, title, full_text, source_kind, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (video_id) DO NOTHING`

	tag, err := tx.Exec(ctx, sql,
		id,
		t.VideoID,
		t.SourceURL,
		t.Title,
		t.FullText,
		string(t.SourceKind),
		t.CreatedAt,
	)
	if err != nil {
		_ = tx.Rollback(ctx)
		return common.HandlePostgreSQLError(err, "failed to create transcript")
	}
	if tag.RowsAffected() == 0 {
		_ = tx.Rollback(ctx)
		return apperrors.New(apperrors.CodeConflict, "transcript for this video already exists")
	}

	if len(t.Segments) > 0 {
		rows := make([][]any, len(t.Segments))
		for i, s := range t.Segments {
			rows[i] = []any{id, i, s.Text, s.OffsetMs, s.DurationMs}
		}

		_, err = tx.CopyFrom(
			ctx,
			pgx.Identifier{"transcript_segments"},
			[]string{"transcript_id", "segment_index", "text", "offset_ms", "duration_ms"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			_ = tx.Rollback(ctx)
			return common.HandlePostgreSQLError(err, "failed to create transcript segments")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return common.HandlePostgreSQLError(err, "failed to commit transcript")
	}
	return nil
}
