/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package remotestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trading-hall-sync-go/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const mongoConnectTimeout = 10 * time.Second

type recordDoc struct {
	Type      string    `bson:"type"`
	Key       string    `bson:"key"`
	Body      string    `bson:"body"`
	UpdatedAt time.Time `bson:"updatedAt"`
	SyncedAt  time.Time `bson:"syncedAt"`
}

func (d recordDoc) toModel() models.SyncedRecord {
	return models.SyncedRecord{
		Type:      models.SyncType(d.Type),
		Key:       d.Key,
		Body:      []byte(d.Body),
		UpdatedAt: d.UpdatedAt.UTC(),
		SyncedAt:  d.SyncedAt.UTC(),
	}
}

// MongoRepository keeps synced records in a MongoDB collection
type MongoRepository struct {
	client     *mongo.Client
	collection *mongo.Collection
}

var _ Repository = (*MongoRepository)(nil)

func NewMongoRepository(ctx context.Context, uri, database string) (*MongoRepository, error) {
	connectCtx, cancel := context.WithTimeout(ctx, mongoConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	collection := client.Database(database).Collection(collectionName)
	_, err = collection.Indexes().CreateMany(connectCtx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "type", Value: 1}, {Key: "key", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "type", Value: 1}, {Key: "updatedAt", Value: -1}},
		},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	zap.L().Info("Sync repository ready",
		zap.String("dialect", "mongo"),
		zap.String("database", database))
	return &MongoRepository{client: client, collection: collection}, nil
}

// Upsert only matches a stored document that is strictly older. When a newer or
// equal one exists the upsert collides with the unique index and rec is dropped.
func (r *MongoRepository) Upsert(ctx context.Context, rec models.SyncedRecord) (bool, error) {
	filter := bson.M{
		"type":      string(rec.Type),
		"key":       rec.Key,
		"updatedAt": bson.M{"$lt": rec.UpdatedAt.UTC()},
	}
	update := bson.M{"$set": recordDoc{
		Type:      string(rec.Type),
		Key:       rec.Key,
		Body:      string(rec.Body),
		UpdatedAt: rec.UpdatedAt.UTC(),
		SyncedAt:  rec.SyncedAt.UTC(),
	}}

	_, err := r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to upsert %s %s: %w", rec.Type, rec.Key, err)
	}
	return true, nil
}

func (r *MongoRepository) List(ctx context.Context, typ models.SyncType, limit int) ([]models.SyncedRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, bson.M{"type": string(typ)}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s records: %w", typ, err)
	}
	defer cursor.Close(ctx)

	var docs []recordDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode %s records: %w", typ, err)
	}

	out := make([]models.SyncedRecord, len(docs))
	for i, d := range docs {
		out[i] = d.toModel()
	}
	return out, nil
}

func (r *MongoRepository) Get(ctx context.Context, typ models.SyncType, key string) (*models.SyncedRecord, error) {
	var doc recordDoc
	err := r.collection.FindOne(ctx, bson.M{"type": string(typ), "key": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s %s", ErrRecordNotFound, typ, key)
	}
	if err != nil {
		return nil, err
	}
	rec := doc.toModel()
	return &rec, nil
}

func (r *MongoRepository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoConnectTimeout)
	defer cancel()
	return r.client.Disconnect(ctx)
}
