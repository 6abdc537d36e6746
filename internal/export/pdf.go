package export

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"

	"medminder/internal/models"
)

// Report is the content of a history PDF.
type Report struct {
	Username string
	From     time.Time
	To       time.Time
	Stats    *models.UserStats
	Intakes  []*models.Intake
}

var pdfColumns = []struct {
	title string
	width float64
}{
	{"Date", 28},
	{"Time", 20},
	{"Medicine", 62},
	{"Scheduled", 26},
	{"Status", 24},
	{"Points", 20},
}

// WriteHistoryPDF renders the report as an A4 table.
func WriteHistoryPDF(w io.Writer, report Report) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(false, 15)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle("Medication history", true)
	pdf.SetCreator("medminder", true)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, "Medication history")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	if report.Username != "" {
		pdf.Cell(0, 6, "Patient: "+tr(report.Username))
		pdf.Ln(6)
	}
	pdf.Cell(0, 6, fmt.Sprintf("Period: %s to %s",
		report.From.Format("January 2, 2006"), report.To.Format("January 2, 2006")))
	pdf.Ln(6)

	taken, missed := 0, 0
	for _, in := range report.Intakes {
		if in.Status == models.IntakeTaken {
			taken++
		} else {
			missed++
		}
	}
	pdf.Cell(0, 6, fmt.Sprintf("Doses taken: %d   Doses missed: %d", taken, missed))
	pdf.Ln(6)
	if report.Stats != nil {
		pdf.Cell(0, 6, fmt.Sprintf("Points: %d   Current streak: %d days", report.Stats.Points, report.Stats.Streak))
		pdf.Ln(6)
	}
	pdf.Ln(4)

	writeHeaderRow := func() {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetFillColor(230, 230, 230)
		for _, c := range pdfColumns {
			pdf.CellFormat(c.width, 7, c.title, "1", 0, "L", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 10)
	}
	writeHeaderRow()

	_, pageHeight := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()
	for _, in := range report.Intakes {
		if pdf.GetY()+7 > pageHeight-bottom-15 {
			pdf.AddPage()
			writeHeaderRow()
		}
		cells := []string{
			in.TakenAt.Format("2006-01-02"),
			in.TakenAt.Format("15:04"),
			tr(truncateString(in.MedicineName, 32)),
			in.ScheduledAt,
			in.Status,
			strconv.Itoa(in.Points),
		}
		for i, c := range pdfColumns {
			pdf.CellFormat(c.width, 7, cells[i], "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	if len(report.Intakes) == 0 {
		pdf.Ln(4)
		pdf.Cell(0, 6, "No doses recorded in this period.")
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to render PDF: %w", err)
	}
	return nil
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
