package ingestapp

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapflow/backend/internal/domain/ingest"
)

func userConfig() *ingest.MappingConfig {
	return &ingest.MappingConfig{
		TableName: "customers",
		Schema: []ingest.ColumnDef{
			{Name: "id", Type: "INTEGER"},
			{Name: "name", Type: "VARCHAR(255)"},
			{Name: "age", Type: "INTEGER"},
		},
		Mappings: map[string]string{"id": "id", "name": "name", "age": "age"},
	}
}

func TestMapper_CleanValuesHaveNoCorrections(t *testing.T) {
	m, err := NewMapper(userConfig())
	require.NoError(t, err)

	rec, rejects := m.MapRow(row(1, "id", "1", "name", "John Doe", "age", "30"))
	require.Empty(t, rejects)
	assert.Equal(t, int64(1), rec.Values["id"])
	assert.Equal(t, "John Doe", rec.Values["name"])
	assert.Equal(t, int64(30), rec.Values["age"])
	assert.Nil(t, rec.Corrections)
}

func TestMapper_FloatIntoIntegerRecordsCoercion(t *testing.T) {
	m, err := NewMapper(userConfig())
	require.NoError(t, err)

	rec, rejects := m.MapRow(row(1, "id", "1", "name", "John", "age", "30.0"))
	require.Empty(t, rejects)
	assert.Equal(t, int64(30), rec.Values["age"])

	corr, ok := rec.Corrections["age"]
	require.True(t, ok)
	assert.Equal(t, "30.0", corr.Before)
	assert.Equal(t, int64(30), corr.After)
	assert.Equal(t, ingest.CorrectionTypeCoercion, corr.CorrectionType)
	assert.Equal(t, "INTEGER", corr.TargetType)
}

func TestMapper_TimestampStandardization(t *testing.T) {
	cfg := &ingest.MappingConfig{
		TableName: "events",
		Schema:    []ingest.ColumnDef{{Name: "occurred_at", Type: "TIMESTAMP"}},
		Mappings:  map[string]string{"occurred_at": "date"},
	}
	m, err := NewMapper(cfg)
	require.NoError(t, err)

	rec, rejects := m.MapRow(row(1, "date", "10/09/2025 8:11 PM"))
	require.Empty(t, rejects)
	assert.Equal(t, "2025-10-09T20:11:00", rec.Values["occurred_at"])

	corr := rec.Corrections["occurred_at"]
	assert.Equal(t, ingest.CorrectionTypeDatetime, corr.CorrectionType)
	assert.Equal(t, "%m/%d/%Y %I:%M %p", corr.SourceFormat)
}

func TestMapper_InvalidValueIntoNullableBecomesNull(t *testing.T) {
	m, err := NewMapper(userConfig())
	require.NoError(t, err)

	rec, rejects := m.MapRow(row(1, "id", "1", "name", "John", "age", "unknown"))
	require.Empty(t, rejects)
	assert.Nil(t, rec.Values["age"])

	corr := rec.Corrections["age"]
	assert.Equal(t, "unknown", corr.Before)
	assert.Nil(t, corr.After)
	assert.Equal(t, ingest.CorrectionTypeCoercion, corr.CorrectionType)
}

func TestMapper_NullIntoNotNullRejectsRow(t *testing.T) {
	cfg := userConfig()
	cfg.Schema[0].NotNull = true
	m, err := NewMapper(cfg)
	require.NoError(t, err)

	_, rejects := m.MapRow(row(7, "id", "not-a-number", "name", "John", "age", "30"))
	require.Len(t, rejects, 1)
	assert.Equal(t, 7, rejects[0].SourceRowNumber)
	assert.Equal(t, "id", rejects[0].Column)
	assert.Equal(t, "not-a-number", rejects[0].Value)
}

func TestMapper_DecimalColumn(t *testing.T) {
	cfg := &ingest.MappingConfig{
		TableName: "orders",
		Schema:    []ingest.ColumnDef{{Name: "total", Type: "DECIMAL(10,2)"}},
		Mappings:  map[string]string{"total": "total"},
	}
	m, err := NewMapper(cfg)
	require.NoError(t, err)

	rec, rejects := m.MapRow(row(1, "total", "19.99"))
	require.Empty(t, rejects)
	d, ok := rec.Values["total"].(decimal.Decimal)
	require.True(t, ok)
	assert.True(t, d.Equal(decimal.RequireFromString("19.99")))
	assert.Nil(t, rec.Corrections)
}

func TestMapper_UnmappedColumnDefaultsNull(t *testing.T) {
	cfg := userConfig()
	delete(cfg.Mappings, "age")
	m, err := NewMapper(cfg)
	require.NoError(t, err)

	rec, rejects := m.MapRow(row(1, "id", "1", "name", "John", "age", "30"))
	require.Empty(t, rejects)
	assert.Nil(t, rec.Values["age"])
	assert.Nil(t, rec.Corrections)
}

func TestMapper_WhitespaceTrimCorrection(t *testing.T) {
	m, err := NewMapper(userConfig())
	require.NoError(t, err)

	rec, rejects := m.MapRow(row(1, "id", "1", "name", "  John  ", "age", "30"))
	require.Empty(t, rejects)
	assert.Equal(t, "John", rec.Values["name"])
	assert.Equal(t, ingest.CorrectionTypeWhitespaceTrim, rec.Corrections["name"].CorrectionType)
}

func TestMapper_ColumnTransform_MergeColumns(t *testing.T) {
	cfg := &ingest.MappingConfig{
		TableName: "people",
		Schema:    []ingest.ColumnDef{{Name: "full_name", Type: "TEXT"}},
		Mappings:  map[string]string{},
		Rules: ingest.TransformRules{
			ColumnTransformations: map[string]ingest.ColumnTransform{
				"full_name": {
					Type:      ingest.ColumnMergeColumns,
					Sources:   []string{"first", "last"},
					Separator: " ",
				},
			},
		},
	}
	m, err := NewMapper(cfg)
	require.NoError(t, err)

	rec, rejects := m.MapRow(row(1, "first", "Grace", "last", "Hopper"))
	require.Empty(t, rejects)
	assert.Equal(t, "Grace Hopper", rec.Values["full_name"])
	assert.Equal(t, ingest.CorrectionTypeMergeColumns, rec.Corrections["full_name"].CorrectionType)
}

func TestMapper_ColumnTransform_RegexReplace(t *testing.T) {
	cfg := &ingest.MappingConfig{
		TableName: "contacts",
		Schema:    []ingest.ColumnDef{{Name: "phone", Type: "VARCHAR(255)"}},
		Mappings:  map[string]string{"phone": "phone"},
		Rules: ingest.TransformRules{
			ColumnTransformations: map[string]ingest.ColumnTransform{
				"phone": {
					Type:        ingest.ColumnRegexReplace,
					Pattern:     `[^\d]`,
					Replacement: "",
				},
			},
		},
	}
	m, err := NewMapper(cfg)
	require.NoError(t, err)

	rec, rejects := m.MapRow(row(1, "phone", "(555) 123-4567"))
	require.Empty(t, rejects)
	assert.Equal(t, "5551234567", rec.Values["phone"])
	corr := rec.Corrections["phone"]
	assert.Equal(t, "(555) 123-4567", corr.Before)
	assert.Equal(t, ingest.CorrectionTypeRegexReplace, corr.CorrectionType)
}
