package parser

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cisco/edge-temperature-pipeline/pkg/models"
)

const sampleCSV = `timestamp,sensor_id,temperature
2024-05-01T12:00:00Z,s1,21.5
2024-05-01T12:00:01Z,s2,30
2024-05-01T12:00:02Z,s3,18.25
2024-05-01T12:00:03Z,s1,22
`

func createTestCSV(t *testing.T, content string) string {
	tmpDir := t.TempDir()
	csvPath := filepath.Join(tmpDir, "test.csv")
	err := os.WriteFile(csvPath, []byte(content), 0644)
	require.NoError(t, err)
	return csvPath
}

func TestNewCSVParser(t *testing.T) {
	csvPath := createTestCSV(t, sampleCSV)

	parser, err := NewCSVParser(csvPath)
	require.NoError(t, err)
	require.NotNil(t, parser)
	defer parser.Close()

	assert.Contains(t, parser.headerMap, "timestamp")
	assert.Contains(t, parser.headerMap, "sensor_id")
	assert.Contains(t, parser.headerMap, "temperature")
}

func TestNewCSVParserFileNotFound(t *testing.T) {
	parser, err := NewCSVParser("/non/existent/file.csv")
	assert.Error(t, err)
	assert.Nil(t, parser)
}

func TestReadNext(t *testing.T) {
	csvPath := createTestCSV(t, sampleCSV)

	parser, err := NewCSVParser(csvPath)
	require.NoError(t, err)
	defer parser.Close()

	reading, err := parser.ReadNext()
	require.NoError(t, err)
	require.NotNil(t, reading)

	assert.Equal(t, models.SensorID("s1"), reading.SensorID)
	assert.Equal(t, 21.5, reading.Temperature)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), reading.Timestamp)
}

func TestReadBatch(t *testing.T) {
	csvPath := createTestCSV(t, sampleCSV)

	parser, err := NewCSVParser(csvPath)
	require.NoError(t, err)
	defer parser.Close()

	readings, err := parser.ReadBatch(3)
	require.NoError(t, err)
	assert.Len(t, readings, 3)

	readings, err = parser.ReadBatch(10)
	require.NoError(t, err)
	assert.Len(t, readings, 1)
}

func TestReset(t *testing.T) {
	csvPath := createTestCSV(t, sampleCSV)

	parser, err := NewCSVParser(csvPath)
	require.NoError(t, err)
	defer parser.Close()

	first, err := parser.ReadAll()
	require.NoError(t, err)
	assert.Len(t, first, 4)

	require.NoError(t, parser.Reset())

	second, err := parser.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestReadNextEOF(t *testing.T) {
	csvPath := createTestCSV(t, sampleCSV)

	parser, err := NewCSVParser(csvPath)
	require.NoError(t, err)
	defer parser.Close()

	for i := 0; i < 4; i++ {
		reading, err := parser.ReadNext()
		require.NoError(t, err)
		require.NotNil(t, reading)
	}

	reading, err := parser.ReadNext()
	require.NoError(t, err)
	assert.Nil(t, reading)
}

func TestCountRecords(t *testing.T) {
	csvPath := createTestCSV(t, sampleCSV)

	count, err := CountRecords(csvPath)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestValidateCSV(t *testing.T) {
	require.NoError(t, ValidateCSV(createTestCSV(t, sampleCSV)))
}

func TestValidateCSVMissingColumns(t *testing.T) {
	tests := []struct {
		name    string
		content string
		missing string
	}{
		{"no sensor column", "timestamp,temperature\n2024-05-01T12:00:00Z,21\n", "sensor_id"},
		{"no temperature column", "timestamp,sensor_id\n2024-05-01T12:00:00Z,s1\n", "temperature"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCSV(createTestCSV(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "missing required column: "+tt.missing)
		})
	}
}

func TestValidateCSVEmpty(t *testing.T) {
	err := ValidateCSV(createTestCSV(t, "timestamp,sensor_id,temperature\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestCaseInsensitiveHeadersAndAliases(t *testing.T) {
	csvContent := `Sensor_ID,VALUE
s4,27
`
	parser, err := NewCSVParser(createTestCSV(t, csvContent))
	require.NoError(t, err)
	defer parser.Close()

	reading, err := parser.ReadNext()
	require.NoError(t, err)
	require.NotNil(t, reading)

	assert.Equal(t, models.SensorID("s4"), reading.SensorID)
	assert.Equal(t, 27.0, reading.Temperature)
	assert.True(t, reading.Timestamp.IsZero())
}

func TestCommentsAreSkipped(t *testing.T) {
	csvContent := `timestamp,sensor_id,temperature
# warm-up readings
2024-05-01T12:00:00Z,s1,21
`
	count, err := CountRecords(createTestCSV(t, csvContent))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestTimestampOffsetsNormalizedToUTC(t *testing.T) {
	csvContent := `timestamp,sensor_id,temperature
2024-05-01T14:00:00.250+02:00,s1,21
`
	parser, err := NewCSVParser(createTestCSV(t, csvContent))
	require.NoError(t, err)
	defer parser.Close()

	reading, err := parser.ReadNext()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 250_000_000, time.UTC), reading.Timestamp)
	assert.Equal(t, time.UTC, reading.Timestamp.Location())
}

func TestInvalidRows(t *testing.T) {
	tests := []struct {
		name string
		row  string
		want string
	}{
		{"missing sensor", "2024-05-01T12:00:00Z,,21", "sensor_id"},
		{"missing temperature", "2024-05-01T12:00:00Z,s1,", "temperature"},
		{"non-numeric temperature", "2024-05-01T12:00:00Z,s1,warm", "invalid temperature"},
		{"not finite", "2024-05-01T12:00:00Z,s1,NaN", "invalid temperature"},
		{"bad timestamp", "yesterday,s1,21", "invalid timestamp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser, err := NewCSVParser(createTestCSV(t, "timestamp,sensor_id,temperature\n"+tt.row+"\n"))
			require.NoError(t, err)
			defer parser.Close()

			reading, err := parser.ReadNext()
			require.Error(t, err)
			assert.Nil(t, reading)
			assert.Contains(t, err.Error(), tt.want)
			assert.Contains(t, err.Error(), "line 2")
		})
	}
}
