package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"medminder/internal/models"
)

var historyHeader = []string{"Date", "Time", "Medicine", "Scheduled", "Status", "Points"}

// WriteHistoryCSV writes one row per intake in the order given.
func WriteHistoryCSV(w io.Writer, intakes []*models.Intake) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(historyHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, in := range intakes {
		row := []string{
			in.TakenAt.Format("2006-01-02"),
			in.TakenAt.Format("15:04:05"),
			in.MedicineName,
			in.ScheduledAt,
			in.Status,
			strconv.Itoa(in.Points),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}
