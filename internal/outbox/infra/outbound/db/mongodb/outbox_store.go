package mongodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/davicafu/eventlab/internal/outbox/domain"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// OutboxStoreMongoDB implementa domain.Store sobre MongoDB.
type OutboxStoreMongoDB struct {
	coll        *mongo.Collection
	maxRetries  int
	lockTimeout time.Duration
}

func NewOutboxStoreMongoDB(client *mongo.Client, dbName string, maxRetries int, lockTimeout time.Duration) *OutboxStoreMongoDB {
	coll := client.Database(dbName).Collection("outbox_events")
	return &OutboxStoreMongoDB{coll: coll, maxRetries: maxRetries, lockTimeout: lockTimeout}
}

// mongoMessage es un helper para mapear los documentos de la base de datos a un struct.
type mongoMessage struct {
	ID          string            `bson:"_id"`
	AggregateID string            `bson:"aggregateId"`
	EventType   string            `bson:"eventType"`
	EventData   string            `bson:"eventData"`
	Metadata    map[string]string `bson:"metadata,omitempty"`
	Status      string            `bson:"status"`
	Attempts    int               `bson:"attempts"`
	CreatedAt   time.Time         `bson:"createdAt"`
	ProcessedAt *time.Time        `bson:"processedAt,omitempty"`
	LockedUntil *time.Time        `bson:"lockedUntil,omitempty"`
	LastError   string            `bson:"error,omitempty"`
}

func toMongoMessage(msg domain.Message) mongoMessage {
	return mongoMessage{
		ID:          msg.ID.String(),
		AggregateID: msg.AggregateID,
		EventType:   msg.EventType,
		EventData:   string(msg.EventData),
		Metadata:    msg.Metadata,
		Status:      string(domain.StatusPending),
		Attempts:    0,
		CreatedAt:   msg.CreatedAt,
	}
}

func fromMongoMessage(mm *mongoMessage) (domain.Message, error) {
	id, err := uuid.Parse(mm.ID)
	if err != nil {
		return domain.Message{}, fmt.Errorf("invalid UUID in outbox document: %w", err)
	}
	status, err := domain.ParseStatus(mm.Status)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:          id,
		AggregateID: mm.AggregateID,
		EventType:   mm.EventType,
		EventData:   json.RawMessage(mm.EventData),
		Metadata:    mm.Metadata,
		Status:      status,
		Attempts:    mm.Attempts,
		CreatedAt:   mm.CreatedAt,
		ProcessedAt: mm.ProcessedAt,
		LockedUntil: mm.LockedUntil,
		LastError:   mm.LastError,
	}, nil
}

func (s *OutboxStoreMongoDB) Add(ctx context.Context, msgs []domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	docs := make([]interface{}, 0, len(msgs))
	for _, msg := range msgs {
		mm := toMongoMessage(msg)
		if mm.CreatedAt.IsZero() {
			mm.CreatedAt = time.Now().UTC()
		}
		docs = append(docs, mm)
	}

	if _, err := s.coll.InsertMany(ctx, docs); err != nil {
		return &domain.OutboxStoreError{Op: "add", Err: err}
	}
	return nil
}

// GetNextBatch reclama mensaje a mensaje con FindOneAndUpdate: cada
// reclamación es un compare-and-swap atómico en el servidor, así que dos
// workers nunca obtienen el mismo documento.
func (s *OutboxStoreMongoDB) GetNextBatch(ctx context.Context, limit int) ([]domain.Message, error) {
	now := time.Now().UTC()
	lockedUntil := now.Add(s.lockTimeout)

	filter := bson.M{"$or": bson.A{
		bson.M{"status": bson.M{"$in": bson.A{string(domain.StatusPending), string(domain.StatusFailed)}}},
		bson.M{"status": string(domain.StatusProcessing), "lockedUntil": bson.M{"$lt": now}},
	}}
	update := bson.M{"$set": bson.M{
		"status":      string(domain.StatusProcessing),
		"lockedUntil": lockedUntil,
	}}
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "createdAt", Value: 1}}).
		SetReturnDocument(options.After)

	var claimed []domain.Message
	for len(claimed) < limit {
		var mm mongoMessage
		err := s.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&mm)
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				break // no quedan candidatos
			}
			return nil, &domain.OutboxStoreError{Op: "claim", Err: err}
		}

		msg, err := fromMongoMessage(&mm)
		if err != nil {
			return nil, &domain.OutboxStoreError{Op: "claim", Err: err}
		}
		claimed = append(claimed, msg)
	}
	return claimed, nil
}

func (s *OutboxStoreMongoDB) MarkAsPublished(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	idStrs := make([]string, len(ids))
	for i, id := range ids {
		idStrs[i] = id.String()
	}

	filter := bson.M{"_id": bson.M{"$in": idStrs}}
	update := bson.M{
		"$set":   bson.M{"status": string(domain.StatusPublished), "processedAt": time.Now().UTC()},
		"$unset": bson.M{"lockedUntil": ""},
	}
	if _, err := s.coll.UpdateMany(ctx, filter, update); err != nil {
		return &domain.OutboxStoreError{Op: "mark", Err: err}
	}
	return nil
}

func (s *OutboxStoreMongoDB) MarkAsFailed(ctx context.Context, id uuid.UUID, cause string) error {
	// Dos pasos en el servidor: incrementamos attempts y después decidimos el
	// estado según el contador ya incrementado.
	filter := bson.M{"_id": id.String()}

	var mm mongoMessage
	err := s.coll.FindOneAndUpdate(ctx, filter,
		bson.M{
			"$inc":   bson.M{"attempts": 1},
			"$set":   bson.M{"error": cause},
			"$unset": bson.M{"lockedUntil": ""},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&mm)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return &domain.OutboxStoreError{Op: "mark", Err: fmt.Errorf("outbox message not found: %s", id)}
		}
		return &domain.OutboxStoreError{Op: "mark", Err: err}
	}

	status := string(domain.StatusFailed)
	if mm.Attempts >= s.maxRetries {
		status = string(domain.StatusDead)
	}
	if _, err := s.coll.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"status": status}}); err != nil {
		return &domain.OutboxStoreError{Op: "mark", Err: err}
	}
	return nil
}

func (s *OutboxStoreMongoDB) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.coll.DeleteMany(ctx, bson.M{
		"status":      string(domain.StatusPublished),
		"processedAt": bson.M{"$lt": before},
	})
	if err != nil {
		return 0, &domain.OutboxStoreError{Op: "cleanup", Err: err}
	}
	return res.DeletedCount, nil
}

func (s *OutboxStoreMongoDB) GetDeadLetters(ctx context.Context, limit int) ([]domain.Message, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := s.coll.Find(ctx, bson.M{"status": string(domain.StatusDead)}, opts)
	if err != nil {
		return nil, &domain.OutboxStoreError{Op: "load", Err: err}
	}
	defer cursor.Close(ctx)

	var msgs []domain.Message
	for cursor.Next(ctx) {
		var mm mongoMessage
		if err := cursor.Decode(&mm); err != nil {
			return nil, &domain.OutboxStoreError{Op: "load", Err: err}
		}
		msg, err := fromMongoMessage(&mm)
		if err != nil {
			return nil, &domain.OutboxStoreError{Op: "load", Err: err}
		}
		msgs = append(msgs, msg)
	}
	return msgs, cursor.Err()
}

// Verificación en tiempo de compilación.
var _ domain.Store = (*OutboxStoreMongoDB)(nil)
