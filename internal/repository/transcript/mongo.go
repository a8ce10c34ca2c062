package transcript

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	apperrors "github.com/Taichi-iskw/ytscribe/internal/errors"
	"github.com/Taichi-iskw/ytscribe/internal/model"
)

// CollectionName is the MongoDB collection holding transcripts
const CollectionName = "transcripts"

// mongoRepository implements Repository using a MongoDB collection
type mongoRepository struct {
	collection *mongo.Collection
}

// NewMongoRepository creates a Repository backed by a MongoDB collection.
// EnsureMongoIndexes must have run against the collection for Create to
// detect duplicates.
func NewMongoRepository(collection *mongo.Collection) Repository {
	return &mongoRepository{collection: collection}
}

// EnsureMongoIndexes creates the unique video ID index
func EnsureMongoIndexes(ctx context.Context, collection *mongo.Collection) error {
	_, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "videoId", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("videoId_unique"),
	})
	if err != nil {
		return handleMongoError(err, "failed to create transcript indexes")
	}
	return nil
}

// GetByVideoID retrieves the transcript stored for a video
func (r *mongoRepository) GetByVideoID(ctx context.Context, videoID string) (*model.Transcript, error) {
	return r.findOne(ctx, bson.M{"videoId": videoID})
}

// GetByID retrieves a transcript by its ID
func (r *mongoRepository) GetByID(ctx context.Context, id string) (*model.Transcript, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *mongoRepository) findOne(ctx context.Context, filter bson.M) (*model.Transcript, error) {
	var t model.Transcript
	if err := r.collection.FindOne(ctx, filter).Decode(&t); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.Wrap(err, apperrors.CodeNotFound, "transcript not found")
		}
		return nil, handleMongoError(err, "failed to get transcript")
	}
	if t.Segments == nil {
		t.Segments = []model.Segment{}
	}
	return &t, nil
}

// Create inserts the transcript document; the unique index rejects a second
// document for the same video.
func (r *mongoRepository) Create(ctx context.Context, t *model.Transcript) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Segments == nil {
		t.Segments = []model.Segment{}
	}

	if _, err := r.collection.InsertOne(ctx, t); err != nil {
		return handleMongoError(err, "failed to create transcript")
	}
	return nil
}

func handleMongoError(err error, operation string) *apperrors.AppError {
	switch {
	case mongo.IsDuplicateKeyError(err):
		return apperrors.Wrap(err, apperrors.CodeConflict, "transcript for this video already exists")
	case mongo.IsNetworkError(err), mongo.IsTimeout(err), errors.Is(err, mongo.ErrClientDisconnected):
		return apperrors.Wrap(err, apperrors.CodeUnavailable, "database connection error")
	default:
		return apperrors.Wrap(err, apperrors.CodeInternal, operation)
	}
}
