package config

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// IngestJobsCollection holds ingestion job status records.
const IngestJobsCollection = "ingest_jobs"

var ingestJobIndexes = []mongo.IndexModel{
	{Keys: bson.D{{Key: "job_id", Value: 1}}, Options: options.Index().SetUnique(true)},
	{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
	{Keys: bson.D{{Key: "created_at", Value: -1}}},
}

// ConnectMongoDB opens the job store database and makes sure the ingest_jobs
// indexes exist. ctx bounds the connect, ping and index build.
func ConnectMongoDB(ctx context.Context, cfg *Config) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(cfg.MongoURI).
		SetAppName("cinemind"))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	jobs := client.Database(cfg.DBName).Collection(IngestJobsCollection)
	if _, err := jobs.Indexes().CreateMany(ctx, ingestJobIndexes); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("ensure %s indexes: %w", IngestJobsCollection, err)
	}
	return client, nil
}
