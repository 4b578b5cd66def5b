package ask

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"
)

// ColumnStats summarizes one numeric result column. Pointers are nil when
// the column holds no values.
type ColumnStats struct {
	Count int      `json:"count"`
	Mean  *float64 `json:"mean"`
	Min   *float64 `json:"min"`
	Max   *float64 `json:"max"`
}

// QuickStats computes count, mean, min and max for every column whose
// non-null values are all numeric.
func QuickStats(columns []string, rows [][]any) map[string]ColumnStats {
	out := map[string]ColumnStats{}
	for i, name := range columns {
		var (
			count     int
			sum       float64
			low, high float64
			numeric   = true
		)
		for _, row := range rows {
			if i >= len(row) || row[i] == nil {
				continue
			}
			value, ok := toFloat(row[i])
			if !ok {
				numeric = false
				break
			}
			if count == 0 || value < low {
				low = value
			}
			if count == 0 || value > high {
				high = value
			}
			sum += value
			count++
		}
		if !numeric || count == 0 {
			continue
		}
		mean := sum / float64(count)
		out[name] = ColumnStats{Count: count, Mean: &mean, Min: &low, Max: &high}
	}
	return out
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

// SampleCSV renders the header and the first n rows as CSV. This is the
// exact text the insight model receives.
func SampleCSV(columns []string, rows [][]any, n int) (string, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(columns); err != nil {
		return "", fmt.Errorf("write csv header: %w", err)
	}
	record := make([]string, len(columns))
	for _, row := range head(rows, n) {
		for i := range record {
			record[i] = ""
			if i < len(row) {
				record[i] = formatValue(row[i])
			}
		}
		if err := writer.Write(record); err != nil {
			return "", fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", fmt.Errorf("flush csv: %w", err)
	}
	return buf.String(), nil
}

// Preview returns the first n rows keyed by column name.
func Preview(columns []string, rows [][]any, n int) []map[string]any {
	sample := head(rows, n)
	out := make([]map[string]any, 0, len(sample))
	for _, row := range sample {
		record := make(map[string]any, len(columns))
		for i, name := range columns {
			if i < len(row) {
				record[name] = row[i]
			}
		}
		out = append(out, record)
	}
	return out
}

func head(rows [][]any, n int) [][]any {
	if n < 0 || n >= len(rows) {
		return rows
	}
	return rows[:n]
}

func formatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	default:
		return fmt.Sprint(v)
	}
}
