package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/models"
)

type OrderStore struct {
	collection *mongo.Collection
	timeout    time.Duration
}

func NewOrderStore(db *Database, timeout time.Duration) *OrderStore {
	return &OrderStore{
		collection: db.Collection(OrderCollection),
		timeout:    timeout,
	}
}

func (s *OrderStore) Create(ctx context.Context, order *models.Order) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}

	if _, err := s.collection.InsertOne(ctx, order); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

func (s *OrderStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var order models.Order
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&order)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find order: %w", err)
	}
	return &order, nil
}

func (s *OrderStore) FindByIDWithUser(ctx context.Context, id primitive.ObjectID) (*models.OrderWithUser, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	pipeline := append(mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"_id": id}}},
	}, withUserStages()...)

	orders, err := s.aggregateOrders(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, ErrNotFound
	}
	return &orders[0], nil
}

func (s *OrderStore) ListByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := s.collection.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	orders := []models.Order{}
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("failed to decode orders: %w", err)
	}
	return orders, nil
}

func (s *OrderStore) ListAll(ctx context.Context) ([]models.OrderWithUser, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	pipeline := append(mongo.Pipeline{
		{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: -1}}}},
	}, withUserStages()...)

	return s.aggregateOrders(ctx, pipeline)
}

// MarkPaid flips isPaid in a single conditional write; a second caller never
// matches the filter and gets OutcomeAlreadyApplied.
func (s *OrderStore) MarkPaid(ctx context.Context, id primitive.ObjectID, paidAt time.Time, result models.PaymentResult) (models.ConfirmResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	filter := bson.M{"_id": id, "isPaid": false}
	update := bson.M{"$set": bson.M{
		"isPaid":        true,
		"paidAt":        paidAt,
		"paymentResult": result,
	}}

	updated, err := s.findOneAndUpdate(ctx, filter, update)
	if err != nil {
		return models.ConfirmResult{}, fmt.Errorf("failed to mark order paid: %w", err)
	}
	if updated != nil {
		return models.ConfirmResult{Outcome: models.OutcomeApplied, Order: updated}, nil
	}

	current, err := s.FindByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return models.ConfirmResult{Outcome: models.OutcomeNotFound}, nil
	}
	if err != nil {
		return models.ConfirmResult{}, err
	}
	return models.ConfirmResult{Outcome: models.OutcomeAlreadyApplied, Order: current}, nil
}

func (s *OrderStore) MarkDelivered(ctx context.Context, id primitive.ObjectID, deliveredAt time.Time) (models.ConfirmResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	filter := bson.M{"_id": id, "isPaid": true, "isDelivered": false}
	update := bson.M{"$set": bson.M{
		"isDelivered": true,
		"deliveredAt": deliveredAt,
	}}

	updated, err := s.findOneAndUpdate(ctx, filter, update)
	if err != nil {
		return models.ConfirmResult{}, fmt.Errorf("failed to mark order delivered: %w", err)
	}
	if updated != nil {
		return models.ConfirmResult{Outcome: models.OutcomeApplied, Order: updated}, nil
	}

	current, err := s.FindByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return models.ConfirmResult{Outcome: models.OutcomeNotFound}, nil
	}
	if err != nil {
		return models.ConfirmResult{}, err
	}
	if !current.IsPaid {
		return models.ConfirmResult{Outcome: models.OutcomePreconditionFailed, Order: current}, nil
	}
	return models.ConfirmResult{Outcome: models.OutcomeAlreadyApplied, Order: current}, nil
}

func (s *OrderStore) CountOrders(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count orders: %w", err)
	}
	return n, nil
}

func (s *OrderStore) SumPaidSales(ctx context.Context) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"isPaid": true}}},
		{{Key: "$group", Value: bson.M{"_id": nil, "totalSales": bson.M{"$sum": "$totalPrice"}}}},
	}

	cursor, err := s.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("failed to sum sales: %w", err)
	}

	var rows []struct {
		TotalSales float64 `bson:"totalSales"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return 0, fmt.Errorf("failed to decode sales: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].TotalSales, nil
}

func (s *OrderStore) SumPaidSalesByDate(ctx context.Context) ([]models.DailySales, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"isPaid": true}}},
		{{Key: "$group", Value: bson.M{
			"_id":        bson.M{"$dateToString": bson.M{"format": "%Y-%m-%d", "date": "$paidAt"}},
			"totalSales": bson.M{"$sum": "$totalPrice"},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	}

	cursor, err := s.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to sum sales by date: %w", err)
	}

	sales := []models.DailySales{}
	if err := cursor.All(ctx, &sales); err != nil {
		return nil, fmt.Errorf("failed to decode sales by date: %w", err)
	}
	return sales, nil
}

func (s *OrderStore) findOneAndUpdate(ctx context.Context, filter, update bson.M) (*models.Order, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var order models.Order
	err := s.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&order)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *OrderStore) aggregateOrders(ctx context.Context, pipeline mongo.Pipeline) ([]models.OrderWithUser, error) {
	cursor, err := s.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate orders: %w", err)
	}

	orders := []models.OrderWithUser{}
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("failed to decode orders: %w", err)
	}
	return orders, nil
}

// withUserStages joins the owning user's public fields onto each order.
func withUserStages() mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$lookup", Value: bson.M{
			"from":         UserCollection,
			"localField":   "userId",
			"foreignField": "_id",
			"as":           "user",
		}}},
		{{Key: "$unwind", Value: bson.M{"path": "$user", "preserveNullAndEmptyArrays": true}}},
		{{Key: "$project", Value: bson.M{"user.password": 0, "user.role": 0, "user.createdAt": 0}}},
	}
}
