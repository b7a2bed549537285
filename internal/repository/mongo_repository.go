package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/go_tickets/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const cartLinesCollection = "cart_lines"

type ticketDocument struct {
	Name        string  `bson:"name"`
	Price       float64 `bson:"price"`
	Description string  `bson:"description,omitempty"`
}

type lineDocument struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	UserEmail  string             `bson:"userEmail"`
	EventID    string             `bson:"eventId"`
	EventTitle string             `bson:"eventTitle"`
	TicketName string             `bson:"ticketName"`
	TicketType ticketDocument     `bson:"ticketType"`
	Quantity   int                `bson:"quantity"`
	CreatedAt  time.Time          `bson:"createdAt"`
	UpdatedAt  time.Time          `bson:"updatedAt"`
}

func (d lineDocument) toDomain() domain.CartLine {
	return domain.CartLine{
		ID:         d.ID.Hex(),
		UserEmail:  d.UserEmail,
		EventID:    d.EventID,
		EventTitle: d.EventTitle,
		TicketType: domain.TicketType{
			Name:        d.TicketType.Name,
			Price:       d.TicketType.Price,
			Description: d.TicketType.Description,
		},
		Quantity:  d.Quantity,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// MongoRepository implements CartRepository on a MongoDB collection.
type MongoRepository struct {
	collection *mongo.Collection
	retry      RetryPolicy
	now        func() time.Time
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{
		collection: db.Collection(cartLinesCollection),
		retry:      DefaultRetryPolicy,
		now:        time.Now,
	}
}

func (m *MongoRepository) WithRetryPolicy(p RetryPolicy) *MongoRepository {
	m.retry = p
	return m
}

func (m *MongoRepository) AddToCart(ctx context.Context, line domain.CartLine) (*domain.CartLine, error) {
	now := m.now()
	filter := bson.M{
		"userEmail":  line.UserEmail,
		"eventId":    line.EventID,
		"ticketName": line.TicketType.Name,
	}
	update := bson.M{
		"$inc": bson.M{"quantity": line.Quantity},
		"$set": bson.M{"updatedAt": now},
		"$setOnInsert": bson.M{
			"eventTitle": line.EventTitle,
			"ticketType": ticketDocument{
				Name:        line.TicketType.Name,
				Price:       line.TicketType.Price,
				Description: line.TicketType.Description,
			},
			"createdAt": now,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc lineDocument
	err := m.retry.do(ctx, isUnsent, func(ctx context.Context) error {
		err := m.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
		if mongo.IsDuplicateKeyError(err) {
			// Two upserts raced on the unique key; the loser now matches the winner's document.
			err = m.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add item to cart: %w", err)
	}

	added := doc.toDomain()
	return &added, nil
}

func (m *MongoRepository) GetCart(ctx context.Context, userEmail string) ([]domain.CartLine, error) {
	filter := bson.M{"userEmail": userEmail}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})

	var docs []lineDocument
	err := m.retry.do(ctx, isTransient, func(ctx context.Context) error {
		cursor, err := m.collection.Find(ctx, filter, opts)
		if err != nil {
			return err
		}
		docs = nil
		return cursor.All(ctx, &docs)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	lines := make([]domain.CartLine, 0, len(docs))
	for _, d := range docs {
		lines = append(lines, d.toDomain())
	}
	return lines, nil
}

func (m *MongoRepository) GetCartCount(ctx context.Context, userEmail string) (int, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"userEmail": userEmail}}},
		{{Key: "$group", Value: bson.M{"_id": nil, "total": bson.M{"$sum": "$quantity"}}}},
	}

	var result []struct {
		Total int `bson:"total"`
	}
	err := m.retry.do(ctx, isTransient, func(ctx context.Context) error {
		cursor, err := m.collection.Aggregate(ctx, pipeline)
		if err != nil {
			return err
		}
		result = nil
		return cursor.All(ctx, &result)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count cart: %w", err)
	}

	if len(result) == 0 {
		return 0, nil
	}
	return result[0].Total, nil
}

func (m *MongoRepository) UpdateCartItem(ctx context.Context, userEmail, lineID string, quantity int) (*domain.CartLine, error) {
	oid, err := primitive.ObjectIDFromHex(lineID)
	if err != nil {
		return nil, ErrInvalidID
	}
	filter := bson.M{"_id": oid, "userEmail": userEmail}

	if quantity <= 0 {
		if err := m.deleteOne(ctx, filter); err != nil {
			return nil, err
		}
		return nil, nil
	}

	update := bson.M{"$set": bson.M{"quantity": quantity, "updatedAt": m.now()}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc lineDocument
	err = m.retry.do(ctx, isTransient, func(ctx context.Context) error {
		return m.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to update cart item: %w", err)
	}

	updated := doc.toDomain()
	return &updated, nil
}

func (m *MongoRepository) RemoveFromCart(ctx context.Context, userEmail, lineID string) error {
	oid, err := primitive.ObjectIDFromHex(lineID)
	if err != nil {
		return ErrInvalidID
	}
	return m.deleteOne(ctx, bson.M{"_id": oid, "userEmail": userEmail})
}

func (m *MongoRepository) deleteOne(ctx context.Context, filter bson.M) error {
	var deleted int64
	err := m.retry.do(ctx, isTransient, func(ctx context.Context) error {
		res, err := m.collection.DeleteOne(ctx, filter)
		if err != nil {
			return err
		}
		deleted = res.DeletedCount
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to remove cart item: %w", err)
	}
	if deleted == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (m *MongoRepository) ClearCart(ctx context.Context, userEmail string) (int64, error) {
	return m.deleteMany(ctx, bson.M{"userEmail": userEmail})
}

func (m *MongoRepository) RemoveLines(ctx context.Context, userEmail string, keys []domain.LineKey) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	or := make(bson.A, 0, len(keys))
	for _, k := range keys {
		or = append(or, bson.M{"eventId": k.EventID, "ticketName": k.TicketName})
	}
	return m.deleteMany(ctx, bson.M{"userEmail": userEmail, "$or": or})
}

func (m *MongoRepository) deleteMany(ctx context.Context, filter bson.M) (int64, error) {
	var deleted int64
	err := m.retry.do(ctx, isTransient, func(ctx context.Context) error {
		res, err := m.collection.DeleteMany(ctx, filter)
		if err != nil {
			return err
		}
		deleted = res.DeletedCount
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to clear cart: %w", err)
	}
	return deleted, nil
}

func (m *MongoRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "userEmail", Value: 1},
				{Key: "eventId", Value: 1},
				{Key: "ticketName", Value: 1},
			},
			Options: options.Index().SetUnique(true).SetName("cart_line_key"),
		},
		{
			Keys:    bson.D{{Key: "userEmail", Value: 1}, {Key: "createdAt", Value: 1}},
			Options: options.Index().SetName("cart_user_created"),
		},
		{
			Keys:    bson.D{{Key: "updatedAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(90 * 24 * 60 * 60), // 90 days TTL
		},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

// NormalizeEmail is the canonical form cart lines are keyed by.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
