package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"medminder/internal/models"
)

func (s *Store) AppendIntake(ctx context.Context, in *models.Intake) error {
	doc := intakeDoc{
		ID:           in.ID,
		UserID:       in.UserID,
		MedicineID:   in.MedicineID,
		MedicineName: in.MedicineName,
		ScheduledAt:  in.ScheduledAt,
		Status:       in.Status,
		TakenAt:      in.TakenAt.UTC(),
		TakenDate:    in.DateStr(),
		Points:       in.Points,
	}
	if _, err := s.history.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to append intake: %w", err)
	}
	return nil
}

// IncrementPoints is a single $inc upsert; streak starts at 0 on insert.
func (s *Store) IncrementPoints(ctx context.Context, userID string, delta int) error {
	_, err := s.stats.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{
			"$inc":         bson.M{"points": delta},
			"$setOnInsert": bson.M{"streak": 0, "last_taken_date": ""},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to increment points: %w", err)
	}
	return nil
}

// TouchStreak uses a pipeline update so the read of the previous date and
// the write happen in one server-side step.
func (s *Store) TouchStreak(ctx context.Context, userID string, day time.Time) error {
	pipeline := mongo.Pipeline{{{Key: "$set", Value: streakUpdate(day)}}}

	_, err := s.stats.UpdateOne(ctx, bson.M{"_id": userID}, pipeline, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to update streak: %w", err)
	}
	return nil
}

func streakUpdate(day time.Time) bson.D {
	today := day.Format(dateLayout)
	yesterday := day.AddDate(0, 0, -1).Format(dateLayout)
	streak := bson.D{{Key: "$ifNull", Value: bson.A{"$streak", 0}}}

	return bson.D{
		{Key: "points", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$points", 0}}}},
		{Key: "streak", Value: bson.D{{Key: "$switch", Value: bson.D{
			{Key: "branches", Value: bson.A{
				bson.D{
					{Key: "case", Value: bson.D{{Key: "$eq", Value: bson.A{"$last_taken_date", today}}}},
					{Key: "then", Value: streak},
				},
				bson.D{
					{Key: "case", Value: bson.D{{Key: "$eq", Value: bson.A{"$last_taken_date", yesterday}}}},
					{Key: "then", Value: bson.D{{Key: "$add", Value: bson.A{streak, 1}}}},
				},
			}},
			{Key: "default", Value: 1},
		}}}},
		{Key: "last_taken_date", Value: today},
	}
}

func (s *Store) ResetStreak(ctx context.Context, userID string) error {
	if _, err := s.stats.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$set": bson.M{"streak": 0}}); err != nil {
		return fmt.Errorf("failed to reset streak: %w", err)
	}
	return nil
}

func (s *Store) GetStats(ctx context.Context, userID string) (*models.UserStats, error) {
	var doc statsDoc
	err := s.stats.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return &models.UserStats{
		UserID:        doc.UserID,
		Points:        doc.Points,
		Streak:        doc.Streak,
		LastTakenDate: doc.LastTakenDate,
	}, nil
}

func (s *Store) ListHistory(ctx context.Context, userID string, filter models.HistoryFilter) ([]*models.Intake, error) {
	opts := options.Find().SetSort(bson.D{{Key: "taken_at", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	return s.findIntakes(ctx, historyFilter(userID, filter), opts)
}

func (s *Store) ListByDate(ctx context.Context, userID, date string) ([]*models.Intake, error) {
	opts := options.Find().SetSort(bson.D{{Key: "taken_at", Value: 1}})
	return s.findIntakes(ctx, bson.M{"user_id": userID, "taken_date": date}, opts)
}

func historyFilter(userID string, filter models.HistoryFilter) bson.M {
	q := bson.M{"user_id": userID}

	takenAt := bson.M{}
	if !filter.From.IsZero() {
		takenAt["$gte"] = filter.From.UTC()
	}
	if !filter.To.IsZero() {
		takenAt["$lt"] = filter.To.UTC()
	}
	if len(takenAt) > 0 {
		q["taken_at"] = takenAt
	}
	if filter.Status != "" {
		q["status"] = filter.Status
	}
	return q
}

func (s *Store) findIntakes(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*models.Intake, error) {
	cursor, err := s.history.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []intakeDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode history: %w", err)
	}

	out := make([]*models.Intake, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.model())
	}
	return out, nil
}
