package services

import (
	"context"
	"fmt"
	"log"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"nodelink/internal/database"
	"nodelink/internal/models"
)

// MongoProjectStore persists projects and runs in MongoDB
type MongoProjectStore struct {
	mongoDB *database.MongoDB
}

// NewMongoProjectStore creates a store on an initialized connection
func NewMongoProjectStore(mongoDB *database.MongoDB) *MongoProjectStore {
	return &MongoProjectStore{mongoDB: mongoDB}
}

func (s *MongoProjectStore) projects() *mongo.Collection {
	return s.mongoDB.Collection(database.CollectionProjects)
}

func (s *MongoProjectStore) runs() *mongo.Collection {
	return s.mongoDB.Collection(database.CollectionRuns)
}

func (s *MongoProjectStore) Name() string { return "mongodb" }

func (s *MongoProjectStore) Ping(ctx context.Context) error {
	return s.mongoDB.Ping(ctx)
}

// Save upserts the whole document
func (s *MongoProjectStore) Save(ctx context.Context, doc models.ProjectDocument) error {
	opts := options.Replace().SetUpsert(true)
	if _, err := s.projects().ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, opts); err != nil {
		return fmt.Errorf("failed to save project: %w", err)
	}
	log.Printf("📦 [STORE] Saved project %s (%d blocks) to MongoDB", doc.ID, len(doc.Blocks))
	return nil
}

func (s *MongoProjectStore) Load(ctx context.Context, id string) (models.ProjectDocument, error) {
	var doc models.ProjectDocument
	err := s.projects().FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return doc, ErrProjectNotFound
	}
	if err != nil {
		return doc, fmt.Errorf("failed to load project: %w", err)
	}
	normalizeDocument(&doc)
	return doc, nil
}

func (s *MongoProjectStore) List(ctx context.Context) ([]models.ProjectSummary, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "updatedAt", Value: -1}}).
		SetProjection(bson.M{"name": 1, "updatedAt": 1, "blocks.id": 1})

	cursor, err := s.projects().Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer cursor.Close(ctx)

	out := []models.ProjectSummary{}
	for cursor.Next(ctx) {
		var doc models.ProjectDocument
		if err := cursor.Decode(&doc); err != nil {
			log.Printf("⚠️ [STORE] Skipping undecodable project: %v", err)
			continue
		}
		out = append(out, summaryOf(doc))
	}
	return out, cursor.Err()
}

func (s *MongoProjectStore) Delete(ctx context.Context, id string) error {
	result, err := s.projects().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrProjectNotFound
	}
	if _, err := s.runs().DeleteMany(ctx, bson.M{"projectId": id}); err != nil {
		log.Printf("⚠️ [STORE] Failed to delete runs of project %s: %v", id, err)
	}
	return nil
}

func (s *MongoProjectStore) SaveRun(ctx context.Context, run models.RunRecord) error {
	if _, err := s.runs().InsertOne(ctx, run); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

func (s *MongoProjectStore) ListRuns(ctx context.Context, projectID string, limit int) ([]models.RunRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "startedAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := s.runs().Find(ctx, bson.M{"projectId": projectID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer cursor.Close(ctx)

	runs := []models.RunRecord{}
	if err := cursor.All(ctx, &runs); err != nil {
		return nil, fmt.Errorf("failed to decode runs: %w", err)
	}
	return runs, nil
}

// normalizeDocument turns BSON container types held in untyped port values
// back into the map/slice shapes the blocks work with
func normalizeDocument(doc *models.ProjectDocument) {
	for i := range doc.Blocks {
		for j := range doc.Blocks[i].Inputs {
			doc.Blocks[i].Inputs[j].Value = normalizeBSON(doc.Blocks[i].Inputs[j].Value)
		}
		for j := range doc.Blocks[i].Outputs {
			doc.Blocks[i].Outputs[j].Value = normalizeBSON(doc.Blocks[i].Outputs[j].Value)
		}
	}
}

func normalizeBSON(v any) any {
	switch t := v.(type) {
	case primitive.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = normalizeBSON(e.Value)
		}
		return m
	case primitive.M:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = normalizeBSON(e)
		}
		return m
	case primitive.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeBSON(e)
		}
		return out
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	default:
		return v
	}
}
