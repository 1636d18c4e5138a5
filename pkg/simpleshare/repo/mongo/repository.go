// Package mongo implements simpleshare.Repository on MongoDB. TTL indexes on
// expires_at let the server reap expired documents on its own.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tendant/simple-share/pkg/simpleshare"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names
const (
	KeysCollection       = "share_keys"
	ReferencesCollection = "share_references"
	TextsCollection      = "share_texts"
	BlobsCollection      = "share_blobs"
)

type keyDoc struct {
	Key       string    `bson:"_id"`
	ExpiresAt time.Time `bson:"expires_at"`
	ClaimedAt time.Time `bson:"claimed_at"`
}

type referenceDoc struct {
	ID        primitive.ObjectID `bson:"_id"`
	Key       string             `bson:"key"`
	Kind      string             `bson:"kind"`
	PayloadID string             `bson:"payload_id"`
	ExpiresAt time.Time          `bson:"expires_at"`
	CreatedAt time.Time          `bson:"created_at"`
}

type textDoc struct {
	ID        string    `bson:"_id"`
	Body      string    `bson:"body"`
	ExpiresAt time.Time `bson:"expires_at"`
	CreatedAt time.Time `bson:"created_at"`
}

type blobDoc struct {
	ID          string    `bson:"_id"`
	DisplayName string    `bson:"display_name"`
	MimeType    string    `bson:"mime_type"`
	BlobHandle  string    `bson:"blob_handle"`
	SizeBytes   int64     `bson:"size_bytes"`
	ExpiresAt   time.Time `bson:"expires_at"`
	CreatedAt   time.Time `bson:"created_at"`
}

// Repository implements simpleshare.Repository using MongoDB
type Repository struct {
	keys  *mongo.Collection
	refs  *mongo.Collection
	texts *mongo.Collection
	blobs *mongo.Collection
}

// New creates a repository over db. Call EnsureIndexes once before use.
func New(db *mongo.Database) *Repository {
	return &Repository{
		keys:  db.Collection(KeysCollection),
		refs:  db.Collection(ReferencesCollection),
		texts: db.Collection(TextsCollection),
		blobs: db.Collection(BlobsCollection),
	}
}

// EnsureIndexes creates the lookup indexes and the TTL indexes.
func (r *Repository) EnsureIndexes(ctx context.Context) error {
	ttl := func() mongo.IndexModel {
		return mongo.IndexModel{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		}
	}

	if _, err := r.refs.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "key", Value: 1}, {Key: "_id", Value: 1}}},
		ttl(),
	}); err != nil {
		return fmt.Errorf("create reference indexes: %w", err)
	}
	for _, coll := range []*mongo.Collection{r.keys, r.texts} {
		if _, err := coll.Indexes().CreateOne(ctx, ttl()); err != nil {
			return fmt.Errorf("create ttl index on %s: %w", coll.Name(), err)
		}
	}

	// Blob rows are left to the reaper, which must delete the bytes first.
	if _, err := r.blobs.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "expires_at", Value: 1}, {Key: "_id", Value: 1}},
	}); err != nil {
		return fmt.Errorf("create expiry index on %s: %w", r.blobs.Name(), err)
	}
	return nil
}

// Key operations

func (r *Repository) ClaimKey(ctx context.Context, key string, expiresAt, now time.Time) error {
	// Matches only a stale claim. A live one makes the upsert collide on _id.
	filter := bson.M{"_id": key, "expires_at": bson.M{"$lt": now}}
	update := bson.M{"$set": bson.M{"expires_at": expiresAt, "claimed_at": now}}

	_, err := r.keys.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		return simpleshare.ErrKeyTaken
	}
	if err != nil {
		return fmt.Errorf("claim key: %w", err)
	}

	_, err = r.refs.DeleteMany(ctx, bson.M{"key": key, "expires_at": bson.M{"$lt": now}})
	if err != nil {
		return fmt.Errorf("purge stale references: %w", err)
	}
	return nil
}

func (r *Repository) ReleaseKey(ctx context.Context, key string) error {
	if _, err := r.keys.DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return fmt.Errorf("release key: %w", err)
	}
	return nil
}

// Payload operations

func (r *Repository) CreateText(ctx context.Context, payload *simpleshare.TextPayload) error {
	doc := textDoc{ID: payload.ID, Body: payload.Body, ExpiresAt: payload.ExpiresAt, CreatedAt: payload.CreatedAt}
	if _, err := r.texts.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("create text: %w", err)
	}
	return nil
}

func (r *Repository) GetText(ctx context.Context, id string) (*simpleshare.TextPayload, error) {
	var doc textDoc
	err := r.texts.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, simpleshare.ErrPayloadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get text: %w", err)
	}
	return &simpleshare.TextPayload{
		ID:        doc.ID,
		Body:      doc.Body,
		ExpiresAt: doc.ExpiresAt.UTC(),
		CreatedAt: doc.CreatedAt.UTC(),
	}, nil
}

func (r *Repository) DeleteText(ctx context.Context, id string) error {
	return deleteByID(ctx, r.texts, id)
}

func (r *Repository) CreateBlob(ctx context.Context, payload *simpleshare.BlobPayload) error {
	doc := blobDoc{
		ID:          payload.ID,
		DisplayName: payload.DisplayName,
		MimeType:    payload.MimeType,
		BlobHandle:  payload.BlobHandle,
		SizeBytes:   payload.SizeBytes,
		ExpiresAt:   payload.ExpiresAt,
		CreatedAt:   payload.CreatedAt,
	}
	if _, err := r.blobs.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("create blob: %w", err)
	}
	return nil
}

func (r *Repository) GetBlob(ctx context.Context, id string) (*simpleshare.BlobPayload, error) {
	var doc blobDoc
	err := r.blobs.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, simpleshare.ErrPayloadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get blob: %w", err)
	}
	return doc.payload(), nil
}

func (r *Repository) DeleteBlob(ctx context.Context, id string) error {
	return deleteByID(ctx, r.blobs, id)
}

func deleteByID(ctx context.Context, coll *mongo.Collection, id string) error {
	res, err := coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete from %s: %w", coll.Name(), err)
	}
	if res.DeletedCount == 0 {
		return simpleshare.ErrPayloadNotFound
	}
	return nil
}

// Reference operations

func (r *Repository) CreateReference(ctx context.Context, ref *simpleshare.Reference) error {
	doc := referenceDoc{
		ID:        primitive.NewObjectID(),
		Key:       ref.Key,
		Kind:      string(ref.Kind),
		PayloadID: ref.PayloadID,
		ExpiresAt: ref.ExpiresAt,
		CreatedAt: ref.CreatedAt,
	}
	if _, err := r.refs.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("create reference: %w", err)
	}
	return nil
}

func (r *Repository) References(ctx context.Context, key string) ([]*simpleshare.Reference, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cur, err := r.refs.Find(ctx, bson.M{"key": key}, opts)
	if err != nil {
		return nil, fmt.Errorf("list references: %w", err)
	}
	defer cur.Close(ctx)

	out := []*simpleshare.Reference{}
	for cur.Next(ctx) {
		var doc referenceDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode reference: %w", err)
		}
		out = append(out, &simpleshare.Reference{
			Key:       doc.Key,
			Kind:      simpleshare.Kind(doc.Kind),
			PayloadID: doc.PayloadID,
			ExpiresAt: doc.ExpiresAt.UTC(),
			CreatedAt: doc.CreatedAt.UTC(),
		})
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("list references: %w", err)
	}
	return out, nil
}

func (r *Repository) DeleteReferences(ctx context.Context, key string) error {
	if _, err := r.refs.DeleteMany(ctx, bson.M{"key": key}); err != nil {
		return fmt.Errorf("delete references: %w", err)
	}
	return nil
}

// Reclamation

func (r *Repository) ExpiredBlobs(ctx context.Context, before time.Time, afterID string, limit int) ([]*simpleshare.BlobPayload, error) {
	if limit <= 0 {
		limit = 1000
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetLimit(int64(limit))

	filter := bson.M{
		"expires_at": bson.M{"$lt": before},
		"_id":        bson.M{"$gt": afterID},
	}
	cur, err := r.blobs.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list expired blobs: %w", err)
	}
	defer cur.Close(ctx)

	var out []*simpleshare.BlobPayload
	for cur.Next(ctx) {
		var doc blobDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode blob: %w", err)
		}
		out = append(out, doc.payload())
	}
	return out, cur.Err()
}

func (r *Repository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	filter := bson.M{"expires_at": bson.M{"$lt": before}}

	var total int64
	for _, coll := range []*mongo.Collection{r.texts, r.refs, r.keys} {
		res, err := coll.DeleteMany(ctx, filter)
		if err != nil {
			return total, fmt.Errorf("delete expired from %s: %w", coll.Name(), err)
		}
		total += res.DeletedCount
	}
	return total, nil
}

func (d blobDoc) payload() *simpleshare.BlobPayload {
	return &simpleshare.BlobPayload{
		ID:          d.ID,
		DisplayName: d.DisplayName,
		MimeType:    d.MimeType,
		BlobHandle:  d.BlobHandle,
		SizeBytes:   d.SizeBytes,
		ExpiresAt:   d.ExpiresAt.UTC(),
		CreatedAt:   d.CreatedAt.UTC(),
	}
}

var _ simpleshare.Repository = (*Repository)(nil)
