package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tianzhicdev/dogetionary-sub001/internal/domain"
)

type watchPositionDoc struct {
	ID        string  `bson:"_id"`
	Word      string  `bson:"word"`
	Position  float64 `bson:"position"`
	Duration  float64 `bson:"duration"`
	UpdatedAt int64   `bson:"updatedAt"`
}

type WatchHistoryRepository struct {
	collection *mongo.Collection
}

func NewWatchHistoryRepository(client *mongo.Client, dbName string) *WatchHistoryRepository {
	return &WatchHistoryRepository{collection: client.Database(dbName).Collection("watch_history")}
}

func (r *WatchHistoryRepository) EnsureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "updatedAt", Value: -1}}},
		{Keys: bson.D{{Key: "word", Value: 1}}},
	}
	_, err := r.collection.Indexes().CreateMany(ctx, models)
	return err
}

func (r *WatchHistoryRepository) Upsert(ctx context.Context, wp domain.WatchPosition) error {
	update := bson.M{
		"$set": bson.M{
			"word":      wp.Word,
			"position":  wp.Position,
			"duration":  wp.Duration,
			"updatedAt": time.Now().Unix(),
		},
	}
	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": string(wp.VideoID)},
		update,
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *WatchHistoryRepository) Get(ctx context.Context, id domain.VideoID) (domain.WatchPosition, error) {
	var doc watchPositionDoc
	err := r.collection.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.WatchPosition{}, domain.ErrNotFound
		}
		return domain.WatchPosition{}, err
	}
	return watchDocToPosition(doc), nil
}

func (r *WatchHistoryRepository) ListRecent(ctx context.Context, limit int) ([]domain.WatchPosition, error) {
	if limit <= 0 {
		limit = 20
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "updatedAt", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []watchPositionDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	positions := make([]domain.WatchPosition, 0, len(docs))
	for _, doc := range docs {
		positions = append(positions, watchDocToPosition(doc))
	}
	return positions, nil
}

func watchDocToPosition(doc watchPositionDoc) domain.WatchPosition {
	return domain.WatchPosition{
		VideoID:   domain.VideoID(doc.ID),
		Word:      doc.Word,
		Position:  doc.Position,
		Duration:  doc.Duration,
		UpdatedAt: time.Unix(doc.UpdatedAt, 0).UTC(),
	}
}
