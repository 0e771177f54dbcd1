package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"shuttled/internal/domain"
)

const (
	colVehicles      = "vehicles"
	colDrivers       = "drivers"
	colRoutes        = "routes"
	colAssignments   = "assignments"
	colTripRecords   = "trip_records"
	colDemandSignals = "demand_signals"
	colRouteStops    = "route_stops"
)

// Mongo is the production Store backed by a MongoDB database.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
	logger *slog.Logger
}

func NewMongo(ctx context.Context, uri, dbName string, logger *slog.Logger) (*Mongo, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	m := &Mongo{
		client: client,
		db:     client.Database(dbName),
		logger: logger.With("component", "mongo_store"),
	}
	m.createIndexes(ctx)
	return m, nil
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func (m *Mongo) createIndexes(ctx context.Context) {
	assignmentIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "driver_id", Value: 1}, {Key: "active", Value: 1}}},
		{Keys: bson.D{{Key: "vehicle_id", Value: 1}, {Key: "active", Value: 1}}},
		{Keys: bson.D{{Key: "route_id", Value: 1}, {Key: "direction", Value: 1}, {Key: "active", Value: 1}}},
	}
	if _, err := m.db.Collection(colAssignments).Indexes().CreateMany(ctx, assignmentIndexes); err != nil {
		m.logger.Error("failed to create assignment indexes", "error", err)
	}

	tripIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "vehicle_id", Value: 1}, {Key: "end_time", Value: -1}}},
	}
	if _, err := m.db.Collection(colTripRecords).Indexes().CreateMany(ctx, tripIndexes); err != nil {
		m.logger.Error("failed to create trip indexes", "error", err)
	}

	demandIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "route_id", Value: 1}, {Key: "direction", Value: 1}, {Key: "expires_at", Value: 1}}},
		// Mongo reaps expired rows itself; reads never depend on it.
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	}
	if _, err := m.db.Collection(colDemandSignals).Indexes().CreateMany(ctx, demandIndexes); err != nil {
		m.logger.Error("failed to create demand indexes", "error", err)
	}

	stopIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "route_id", Value: 1}, {Key: "direction", Value: 1}, {Key: "sequence", Value: 1}}},
	}
	if _, err := m.db.Collection(colRouteStops).Indexes().CreateMany(ctx, stopIndexes); err != nil {
		m.logger.Error("failed to create route stop indexes", "error", err)
	}
}

func (m *Mongo) GetVehicle(ctx context.Context, id string) (*domain.Vehicle, error) {
	var v domain.Vehicle
	err := m.db.Collection(colVehicles).FindOne(ctx, bson.M{"_id": id}).Decode(&v)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (m *Mongo) PutVehicle(ctx context.Context, v *domain.Vehicle) error {
	_, err := m.db.Collection(colVehicles).ReplaceOne(ctx,
		bson.M{"_id": v.ID}, v, options.Replace().SetUpsert(true))
	return err
}

func (m *Mongo) ListVehicles(ctx context.Context) ([]*domain.Vehicle, error) {
	cur, err := m.db.Collection(colVehicles).Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	var result []*domain.Vehicle
	if err := cur.All(ctx, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (m *Mongo) GetDriver(ctx context.Context, id string) (*domain.Driver, error) {
	var d domain.Driver
	err := m.db.Collection(colDrivers).FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (m *Mongo) GetRoute(ctx context.Context, id string) (*domain.Route, error) {
	var r domain.Route
	err := m.db.Collection(colRoutes).FindOne(ctx, bson.M{"_id": id}).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (m *Mongo) GetAssignment(ctx context.Context, id string) (*domain.Assignment, error) {
	var a domain.Assignment
	err := m.db.Collection(colAssignments).FindOne(ctx, bson.M{"_id": id}).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (m *Mongo) QueryAssignments(ctx context.Context, f AssignmentFilter) ([]*domain.Assignment, error) {
	filter := bson.M{}
	if f.Active != nil {
		filter["active"] = *f.Active
	}
	if f.DriverID != "" {
		filter["driver_id"] = f.DriverID
	}
	if f.VehicleID != "" {
		filter["vehicle_id"] = f.VehicleID
	}
	if f.RouteID != "" {
		filter["route_id"] = f.RouteID
	}
	if f.Direction != "" {
		filter["direction"] = f.Direction
	}
	if f.ExcludeID != "" {
		filter["_id"] = bson.M{"$ne": f.ExcludeID}
	}

	cur, err := m.db.Collection(colAssignments).Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var result []*domain.Assignment
	if err := cur.All(ctx, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (m *Mongo) PutAssignment(ctx context.Context, a *domain.Assignment) error {
	_, err := m.db.Collection(colAssignments).ReplaceOne(ctx,
		bson.M{"_id": a.ID}, a, options.Replace().SetUpsert(true))
	return err
}

func (m *Mongo) AppendTripRecord(ctx context.Context, rec *domain.TripRecord) error {
	_, err := m.db.Collection(colTripRecords).InsertOne(ctx, rec)
	return err
}

func (m *Mongo) ListTripRecords(ctx context.Context, vehicleID string, limit int) ([]*domain.TripRecord, error) {
	filter := bson.M{}
	if vehicleID != "" {
		filter["vehicle_id"] = vehicleID
	}
	opts := options.Find().SetSort(bson.D{{Key: "end_time", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := m.db.Collection(colTripRecords).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var result []*domain.TripRecord
	if err := cur.All(ctx, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (m *Mongo) AppendDemandSignal(ctx context.Context, sig *domain.DemandSignal) error {
	_, err := m.db.Collection(colDemandSignals).InsertOne(ctx, sig)
	return err
}

func (m *Mongo) QueryDemandSignals(ctx context.Context, routeID string, dir domain.Direction, notExpiredAt time.Time) ([]*domain.DemandSignal, error) {
	filter := bson.M{
		"route_id":   routeID,
		"direction":  dir,
		"expires_at": bson.M{"$gt": notExpiredAt},
	}
	cur, err := m.db.Collection(colDemandSignals).Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	var result []*domain.DemandSignal
	if err := cur.All(ctx, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (m *Mongo) GetRouteStopSequence(ctx context.Context, routeID string, dir domain.Direction) ([]domain.RouteStop, error) {
	filter := bson.M{"route_id": routeID, "direction": dir}
	cur, err := m.db.Collection(colRouteStops).Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "sequence", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var result []domain.RouteStop
	if err := cur.All(ctx, &result); err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, ErrNotFound
	}
	return result, nil
}
