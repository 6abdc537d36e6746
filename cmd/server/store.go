package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"medminder/internal/config"
	"medminder/internal/database"
	"medminder/internal/handlers"
	"medminder/internal/intake"
	"medminder/internal/repository"
	"medminder/internal/repository/mongostore"
	"medminder/internal/services"
)

type medicineStore interface {
	handlers.MedicineStore
	services.MedicineSource
}

type intakeStore interface {
	intake.Store
	handlers.DayLister
	services.DayStore
}

type stores struct {
	medicines medicineStore
	intakes   intakeStore
	close     func()
}

// openStores picks the backend for medicines and intake history.
func openStores(ctx context.Context, cfg *config.Config, db *database.DB) (*stores, error) {
	switch cfg.Store.Driver {
	case config.StoreMongo:
		ms, err := mongostore.Connect(ctx, cfg.Store.MongoURI, cfg.Store.MongoDatabase)
		if err != nil {
			return nil, err
		}
		if err := ms.EnsureIndexes(ctx); err != nil {
			ms.Close(context.Background())
			return nil, fmt.Errorf("failed to prepare MongoDB: %w", err)
		}
		return &stores{
			medicines: ms,
			intakes:   ms,
			close: func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := ms.Close(closeCtx); err != nil {
					log.Printf("Failed to disconnect MongoDB: %v", err)
				}
			},
		}, nil
	default:
		return &stores{
			medicines: repository.NewMedicineRepository(db),
			intakes:   repository.NewIntakeRepository(db),
			close:     func() {},
		}, nil
	}
}
