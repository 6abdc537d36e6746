// Package mongostore keeps medicines, intake history and reward counters in
// MongoDB. It is selected with STORE_DRIVER=mongo; accounts stay in SQLite.
package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"medminder/internal/models"
)

const (
	medicinesCollection = "medicines"
	historyCollection   = "intakeHistory"
	statsCollection     = "userStats"

	dateLayout = "2006-01-02"
)

type Store struct {
	db        *mongo.Database
	medicines *mongo.Collection
	history   *mongo.Collection
	stats     *mongo.Collection
}

// Connect dials uri and pings the server before returning.
func Connect(ctx context.Context, uri, dbName string) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return New(client.Database(dbName)), nil
}

func New(db *mongo.Database) *Store {
	return &Store{
		db:        db,
		medicines: db.Collection(medicinesCollection),
		history:   db.Collection(historyCollection),
		stats:     db.Collection(statsCollection),
	}
}

// EnsureIndexes creates the indexes the queries rely on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.medicines.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create medicines index: %w", err)
	}

	_, err = s.history.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "taken_at", Value: -1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "taken_date", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create history indexes: %w", err)
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.db.Client().Disconnect(ctx)
}

type medicineDoc struct {
	ID           string    `bson:"_id"`
	UserID       string    `bson:"user_id"`
	Name         string    `bson:"name"`
	Dosage       string    `bson:"dosage"`
	Timing       string    `bson:"timing"`
	Use          string    `bson:"use"`
	Description  string    `bson:"description,omitempty"`
	Schedule     []string  `bson:"schedule"`
	DurationDays int       `bson:"duration"`
	Quantity     int       `bson:"quantity"`
	PhotoURL     string    `bson:"photo_url,omitempty"`
	Status       string    `bson:"status"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

func toMedicineDoc(m *models.Medicine) medicineDoc {
	return medicineDoc{
		ID:           m.ID,
		UserID:       m.UserID,
		Name:         m.Name,
		Dosage:       m.Dosage,
		Timing:       m.Timing,
		Use:          m.Use,
		Description:  m.Description,
		Schedule:     m.Schedule,
		DurationDays: m.DurationDays,
		Quantity:     m.Quantity,
		PhotoURL:     m.PhotoURL,
		Status:       m.Status,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func (d medicineDoc) model() *models.Medicine {
	return &models.Medicine{
		ID:           d.ID,
		UserID:       d.UserID,
		Name:         d.Name,
		Dosage:       d.Dosage,
		Timing:       d.Timing,
		Use:          d.Use,
		Description:  d.Description,
		Schedule:     d.Schedule,
		DurationDays: d.DurationDays,
		Quantity:     d.Quantity,
		PhotoURL:     d.PhotoURL,
		Status:       d.Status,
		CreatedAt:    d.CreatedAt.Local(),
		UpdatedAt:    d.UpdatedAt.Local(),
	}
}

type intakeDoc struct {
	ID           string    `bson:"_id"`
	UserID       string    `bson:"user_id"`
	MedicineID   string    `bson:"medicine_id"`
	MedicineName string    `bson:"medicine_name"`
	ScheduledAt  string    `bson:"scheduled_at"`
	Status       string    `bson:"status"`
	TakenAt      time.Time `bson:"taken_at"`
	TakenDate    string    `bson:"taken_date"`
	Points       int       `bson:"points"`
}

func (d intakeDoc) model() *models.Intake {
	return &models.Intake{
		ID:           d.ID,
		UserID:       d.UserID,
		MedicineID:   d.MedicineID,
		MedicineName: d.MedicineName,
		ScheduledAt:  d.ScheduledAt,
		Status:       d.Status,
		TakenAt:      d.TakenAt.Local(),
		Points:       d.Points,
	}
}

type statsDoc struct {
	UserID        string `bson:"_id"`
	Points        int    `bson:"points"`
	Streak        int    `bson:"streak"`
	LastTakenDate string `bson:"last_taken_date"`
}
