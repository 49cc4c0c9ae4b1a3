package sink

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/matzehuels/tilestitch/pkg/errors"
	"github.com/matzehuels/tilestitch/pkg/stitch"
	"github.com/matzehuels/tilestitch/pkg/tile"
)

// Document is one stitched detection as stored in MongoDB.
type Document struct {
	Job     string       `bson:"job"`
	Kind    string       `bson:"kind"`
	Object  *tile.Object `bson:"object,omitempty"`
	Point   *tile.Point  `bson:"point,omitempty"`
	Created time.Time    `bson:"created"`
}

// Mongo writes object and point outputs to a MongoDB collection.
type Mongo struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongo connects to uri and selects database db and collection coll.
// It pings the server so that a bad URI fails here rather than on first write.
func NewMongo(ctx context.Context, uri, db, coll string) (*Mongo, error) {
	if err := errors.ValidateCollectionName(db); err != nil {
		return nil, err
	}
	if err := errors.ValidateCollectionName(coll); err != nil {
		return nil, err
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "connect %s", uri)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "ping %s", uri)
	}
	c := client.Database(db).Collection(coll)
	idx := mongo.IndexModel{Keys: bson.D{{Key: "job", Value: 1}}}
	if _, err := c.Indexes().CreateOne(ctx, idx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "create index")
	}
	return &Mongo{client: client, coll: c}, nil
}

// Documents converts a stitched value to documents. Only object and coordinate
// outputs produce documents.
func Documents(jobID string, s *stitch.Stitched) ([]Document, error) {
	if s == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "no stitched result to write")
	}
	now := time.Now().UTC()
	kind := s.Value.Kind.String()
	switch s.Value.Kind {
	case tile.KindObjects:
		docs := make([]Document, len(s.Value.Objects))
		for i := range s.Value.Objects {
			docs[i] = Document{Job: jobID, Kind: kind, Object: &s.Value.Objects[i], Created: now}
		}
		return docs, nil
	case tile.KindCoords:
		docs := make([]Document, len(s.Value.Points))
		for i := range s.Value.Points {
			docs[i] = Document{Job: jobID, Kind: kind, Point: &s.Value.Points[i], Created: now}
		}
		return docs, nil
	}
	return nil, errors.New(errors.ErrCodeUnsupportedOutputType, "mongo sink cannot store %s output", kind)
}

// Write replaces the documents of jobID with the detections in s and returns
// how many were inserted.
func (m *Mongo) Write(ctx context.Context, jobID string, s *stitch.Stitched) (int, error) {
	docs, err := Documents(jobID, s)
	if err != nil {
		return 0, err
	}
	if _, err := m.coll.DeleteMany(ctx, bson.M{"job": jobID}); err != nil {
		return 0, errors.Wrap(errors.ErrCodeInternal, err, "clear job %s", jobID)
	}
	if len(docs) == 0 {
		return 0, nil
	}
	batch := make([]interface{}, len(docs))
	for i := range docs {
		batch[i] = docs[i]
	}
	res, err := m.coll.InsertMany(ctx, batch)
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeInternal, err, "insert %d documents", len(docs))
	}
	return len(res.InsertedIDs), nil
}

// Count returns how many documents are stored for jobID.
func (m *Mongo) Count(ctx context.Context, jobID string) (int64, error) {
	n, err := m.coll.CountDocuments(ctx, bson.M{"job": jobID})
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeInternal, err, "count job %s", jobID)
	}
	return n, nil
}

// Close disconnects from the server.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
