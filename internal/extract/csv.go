// ABOUTME: CSV profiling for tabular attachments
// ABOUTME: Summarizes shape, column types, missing values, numeric stats and frequent values
package extract

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
)

const (
	// DefaultSampleRows is how many leading rows a profile keeps
	DefaultSampleRows = 5
	topValueCount     = 3
)

// Column types inferred by ProfileCSV
const (
	ColumnNumeric = "numeric"
	ColumnText    = "text"
	ColumnEmpty   = "empty"
)

// ValueCount is a categorical value and how often it occurs
type ValueCount struct {
	Value string
	Count int
}

// ColumnProfile summarizes one column
type ColumnProfile struct {
	Name      string
	Type      string
	Missing   int
	Min       float64
	Max       float64
	Mean      float64
	TopValues []ValueCount
}

// CSVProfile summarizes a whole table
type CSVProfile struct {
	Rows    int
	Columns []ColumnProfile
	Sample  [][]string
}

// ProfileCSV reads a CSV payload whose first record is the header.
// Rows with a different field count are padded or cut to the header width.
func ProfileCSV(payload []byte, sampleRows int) (*CSVProfile, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, errors.New("csv payload is empty")
	}
	if sampleRows < 0 {
		sampleRows = 0
	}

	r := csv.NewReader(bytes.NewReader(payload))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	width := len(header)

	values := make([][]string, width)
	profile := &CSVProfile{}
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv row %d: %w", profile.Rows+2, err)
		}
		row := make([]string, width)
		copy(row, record)
		for i, v := range row {
			values[i] = append(values[i], v)
		}
		if len(profile.Sample) < sampleRows {
			profile.Sample = append(profile.Sample, row)
		}
		profile.Rows++
	}

	profile.Columns = make([]ColumnProfile, width)
	for i, name := range header {
		profile.Columns[i] = profileColumn(strings.TrimSpace(name), values[i])
	}
	return profile, nil
}

func isMissing(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "na", "n/a", "nan", "null", "none":
		return true
	}
	return false
}

func profileColumn(name string, values []string) ColumnProfile {
	col := ColumnProfile{Name: name}

	var present []string
	for _, v := range values {
		if isMissing(v) {
			col.Missing++
			continue
		}
		present = append(present, strings.TrimSpace(v))
	}
	if len(present) == 0 {
		col.Type = ColumnEmpty
		return col
	}

	nums := make([]float64, 0, len(present))
	for _, v := range present {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			break
		}
		nums = append(nums, f)
	}

	if len(nums) == len(present) {
		col.Type = ColumnNumeric
		col.Min, col.Max = math.Inf(1), math.Inf(-1)
		var sum float64
		for _, f := range nums {
			col.Min = math.Min(col.Min, f)
			col.Max = math.Max(col.Max, f)
			sum += f
		}
		col.Mean = sum / float64(len(nums))
		return col
	}

	col.Type = ColumnText
	counts := make(map[string]int)
	for _, v := range present {
		counts[v]++
	}
	for v, c := range counts {
		col.TopValues = append(col.TopValues, ValueCount{Value: v, Count: c})
	}
	sort.Slice(col.TopValues, func(i, j int) bool {
		if col.TopValues[i].Count != col.TopValues[j].Count {
			return col.TopValues[i].Count > col.TopValues[j].Count
		}
		return col.TopValues[i].Value < col.TopValues[j].Value
	})
	if len(col.TopValues) > topValueCount {
		col.TopValues = col.TopValues[:topValueCount]
	}
	return col
}

// String renders the profile as plain text suitable for a prompt
func (p *CSVProfile) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Shape: %d rows x %d columns\n", p.Rows, len(p.Columns)))
	sb.WriteString("Columns:\n")
	for _, col := range p.Columns {
		sb.WriteString(fmt.Sprintf("- %s (%s, %d missing)", col.Name, col.Type, col.Missing))
		switch col.Type {
		case ColumnNumeric:
			sb.WriteString(fmt.Sprintf(": min=%s max=%s mean=%s",
				formatFloat(col.Min), formatFloat(col.Max), formatFloat(col.Mean)))
		case ColumnText:
			parts := make([]string, len(col.TopValues))
			for i, vc := range col.TopValues {
				parts[i] = fmt.Sprintf("%s (%d)", vc.Value, vc.Count)
			}
			sb.WriteString(": top values " + strings.Join(parts, ", "))
		}
		sb.WriteString("\n")
	}

	if len(p.Sample) > 0 {
		names := make([]string, len(p.Columns))
		for i, col := range p.Columns {
			names[i] = col.Name
		}
		sb.WriteString("Sample rows:\n")
		sb.WriteString(strings.Join(names, ", ") + "\n")
		for _, row := range p.Sample {
			sb.WriteString(strings.Join(row, ", ") + "\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Truncate cuts s to at most maxChars runes. maxChars <= 0 disables the cap.
func Truncate(s string, maxChars int) string {
	if maxChars <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
