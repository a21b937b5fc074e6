// Package parser reads recorded sensor readings from CSV files for replay.
package parser

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/relvacode/iso8601"

	"github.com/cisco/edge-temperature-pipeline/pkg/models"
)

// CSVParser parses sensor readings from CSV files.
//
// The expected layout is the one the window endpoint exports:
//
//	timestamp,sensor_id,temperature
//
// Column order does not matter and names are case-insensitive. "value" and
// "temp" are accepted as aliases for the temperature column. The timestamp
// column is optional; rows without one carry a zero Timestamp.
type CSVParser struct {
	filePath  string
	file      *os.File
	reader    *csv.Reader
	headers   []string
	headerMap map[string]int
}

var temperatureColumns = []string{"temperature", "temp", "value"}

// NewCSVParser creates a new CSV parser for the given file.
func NewCSVParser(filePath string) (*CSVParser, error) {
	p := &CSVParser{filePath: filePath}
	if err := p.open(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *CSVParser) open() error {
	file, err := os.Open(p.filePath)
	if err != nil {
		return fmt.Errorf("failed to open CSV file: %w", err)
	}

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	headers, err := reader.Read()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to read CSV headers: %w", err)
	}

	headerMap := make(map[string]int, len(headers))
	for i, h := range headers {
		headerMap[strings.ToLower(strings.TrimSpace(h))] = i
	}

	p.file = file
	p.reader = reader
	p.headers = headers
	p.headerMap = headerMap
	return nil
}

// Close closes the parser and underlying file.
func (p *CSVParser) Close() error {
	if p.file != nil {
		err := p.file.Close()
		p.file = nil
		return err
	}
	return nil
}

// Reset rewinds the parser to the first data row.
func (p *CSVParser) Reset() error {
	if err := p.Close(); err != nil {
		return fmt.Errorf("failed to close CSV file: %w", err)
	}
	return p.open()
}

// ReadNext reads and parses the next row from the CSV.
// Returns nil when EOF is reached.
func (p *CSVParser) ReadNext() (*models.SensorReading, error) {
	record, err := p.reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV row: %w", err)
	}

	reading, err := p.parseRecord(record)
	if err != nil {
		line, _ := p.reader.FieldPos(0)
		return nil, fmt.Errorf("line %d: %w", line, err)
	}
	return reading, nil
}

// ReadBatch reads up to n records from the CSV.
func (p *CSVParser) ReadBatch(n int) ([]*models.SensorReading, error) {
	readings := make([]*models.SensorReading, 0, n)

	for i := 0; i < n; i++ {
		reading, err := p.ReadNext()
		if err != nil {
			return readings, err
		}
		if reading == nil {
			break
		}
		readings = append(readings, reading)
	}

	return readings, nil
}

// ReadAll reads all remaining records from the CSV.
func (p *CSVParser) ReadAll() ([]*models.SensorReading, error) {
	var readings []*models.SensorReading

	for {
		reading, err := p.ReadNext()
		if err != nil {
			return readings, err
		}
		if reading == nil {
			break
		}
		readings = append(readings, reading)
	}

	return readings, nil
}

func (p *CSVParser) field(record []string, names ...string) (string, bool) {
	for _, name := range names {
		if idx, ok := p.headerMap[name]; ok && idx < len(record) {
			return strings.TrimSpace(record[idx]), true
		}
	}
	return "", false
}

// parseRecord converts a CSV record to a SensorReading.
func (p *CSVParser) parseRecord(record []string) (*models.SensorReading, error) {
	id, _ := p.field(record, "sensor_id")
	if id == "" {
		return nil, fmt.Errorf("missing required field: sensor_id")
	}

	raw, _ := p.field(record, temperatureColumns...)
	if raw == "" {
		return nil, fmt.Errorf("missing required field: temperature")
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, fmt.Errorf("invalid temperature %q", raw)
	}

	reading := &models.SensorReading{SensorID: models.SensorID(id), Temperature: value}

	if ts, ok := p.field(record, "timestamp"); ok && ts != "" {
		parsed, err := iso8601.ParseString(ts)
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp %q: %w", ts, err)
		}
		reading.Timestamp = parsed.UTC()
	}

	return reading, nil
}

// CountRecords counts the total number of data records in the CSV.
func CountRecords(filePath string) (int, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.Comment = '#'

	if _, err := reader.Read(); err != nil {
		return 0, err
	}

	count := 0
	for {
		_, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return count, err
		}
		count++
	}

	return count, nil
}

// ValidateCSV checks that the file has the required columns and that its first
// row parses.
func ValidateCSV(filePath string) error {
	parser, err := NewCSVParser(filePath)
	if err != nil {
		return err
	}
	defer parser.Close()

	if _, ok := parser.headerMap["sensor_id"]; !ok {
		return fmt.Errorf("missing required column: sensor_id")
	}
	found := false
	for _, col := range temperatureColumns {
		if _, ok := parser.headerMap[col]; ok {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("missing required column: temperature")
	}

	reading, err := parser.ReadNext()
	if err != nil {
		return fmt.Errorf("failed to parse first record: %w", err)
	}
	if reading == nil {
		return fmt.Errorf("CSV file is empty")
	}

	return nil
}
