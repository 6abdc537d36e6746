package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"medminder/internal/models"
	"medminder/internal/repository"
)

func (s *Store) Create(ctx context.Context, m *models.Medicine) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Status == "" {
		m.Status = models.MedicineStatusActive
	}
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now

	if _, err := s.medicines.InsertOne(ctx, toMedicineDoc(m)); err != nil {
		return fmt.Errorf("failed to create medicine: %w", err)
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, userID, id string) (*models.Medicine, error) {
	var doc medicineDoc
	err := s.medicines.FindOne(ctx, bson.M{"_id": id, "user_id": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get medicine: %w", err)
	}
	return doc.model(), nil
}

func (s *Store) ListByUser(ctx context.Context, userID string, activeOnly bool) ([]*models.Medicine, error) {
	filter := bson.M{"user_id": userID}
	if activeOnly {
		filter["status"] = models.MedicineStatusActive
	}
	return s.findMedicines(ctx, filter, bson.D{{Key: "created_at", Value: 1}})
}

func (s *Store) ListActive(ctx context.Context) ([]*models.Medicine, error) {
	return s.findMedicines(ctx,
		bson.M{"status": models.MedicineStatusActive},
		bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: 1}},
	)
}

func (s *Store) findMedicines(ctx context.Context, filter bson.M, sort bson.D) ([]*models.Medicine, error) {
	cursor, err := s.medicines.Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return nil, fmt.Errorf("failed to list medicines: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []medicineDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode medicines: %w", err)
	}

	out := make([]*models.Medicine, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.model())
	}
	return out, nil
}

func (s *Store) Update(ctx context.Context, m *models.Medicine) error {
	m.UpdatedAt = time.Now().UTC()
	update := bson.M{"$set": bson.M{
		"name":        m.Name,
		"dosage":      m.Dosage,
		"timing":      m.Timing,
		"use":         m.Use,
		"description": m.Description,
		"schedule":    m.Schedule,
		"duration":    m.DurationDays,
		"quantity":    m.Quantity,
		"photo_url":   m.PhotoURL,
		"status":      m.Status,
		"updated_at":  m.UpdatedAt,
	}}
	return s.updateMedicine(ctx, m.UserID, m.ID, update)
}

func (s *Store) SetStatus(ctx context.Context, userID, id, status string) error {
	update := bson.M{"$set": bson.M{"status": status, "updated_at": time.Now().UTC()}}
	return s.updateMedicine(ctx, userID, id, update)
}

func (s *Store) updateMedicine(ctx context.Context, userID, id string, update bson.M) error {
	res, err := s.medicines.UpdateOne(ctx, bson.M{"_id": id, "user_id": userID}, update)
	if err != nil {
		return fmt.Errorf("failed to update medicine: %w", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, userID, id string) error {
	res, err := s.medicines.DeleteOne(ctx, bson.M{"_id": id, "user_id": userID})
	if err != nil {
		return fmt.Errorf("failed to delete medicine: %w", err)
	}
	if res.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}
