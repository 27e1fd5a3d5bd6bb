package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"storefront/models"
)

type ProductLedger struct {
	collection *mongo.Collection
	timeout    time.Duration
}

func NewProductLedger(db *Database, timeout time.Duration) *ProductLedger {
	return &ProductLedger{
		collection: db.Collection(ProductCollection),
		timeout:    timeout,
	}
}

// FindByIDs resolves products in one query. Unknown or malformed ids are
// simply absent from the result.
func (l *ProductLedger) FindByIDs(ctx context.Context, ids []string) (map[string]models.Product, error) {
	objIDs := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			continue
		}
		objIDs = append(objIDs, oid)
	}

	found := make(map[string]models.Product, len(objIDs))
	if len(objIDs) == 0 {
		return found, nil
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	cursor, err := l.collection.Find(ctx, bson.M{"_id": bson.M{"$in": objIDs}})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch products: %w", err)
	}

	var products []models.Product
	if err := cursor.All(ctx, &products); err != nil {
		return nil, fmt.Errorf("failed to decode products: %w", err)
	}

	for _, p := range products {
		found[p.ID.Hex()] = p
	}
	return found, nil
}

func (l *ProductLedger) List(ctx context.Context) ([]models.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	cursor, err := l.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	products := []models.Product{}
	if err := cursor.All(ctx, &products); err != nil {
		return nil, fmt.Errorf("failed to decode products: %w", err)
	}
	return products, nil
}
