// Package export writes the recorded temperature series as CSV.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/sweeney/thermo-dash/internal/logic"
)

// Header is the first CSV row.
var Header = []string{"Time", "Temperature (°C)", "Threshold (°C)"}

// TimeLayout is ISO-8601 with millisecond precision, always UTC.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// ContentType is the MIME type of the export file.
const ContentType = "text/csv; charset=utf-8"

// WriteCSV writes the header and one row per sample.
// An empty series returns logic.ErrNothingToExport and writes nothing.
func WriteCSV(w io.Writer, samples []logic.Sample) error {
	if len(samples) == 0 {
		return logic.ErrNothingToExport
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, s := range samples {
		row := []string{
			s.Timestamp.UTC().Format(TimeLayout),
			formatFixed(s.Temperature),
			formatFixed(s.Threshold),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// CSV returns the export file contents.
func CSV(samples []logic.Sample) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, samples); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Filename returns the download name for an export taken at t.
func Filename(t time.Time) string {
	return "temperature_data_" + t.UTC().Format("2006-01-02T15-04-05Z") + ".csv"
}

func formatFixed(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
