package ingest

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowTransformation_DecodeVariants(t *testing.T) {
	raw := `[
		{"type":"explode_columns","sources":["email_1","email_2"],"target":"email","dedupe_values":true},
		{"type":"explode_list_rows","source":"tags","delimiters":[";"],"strip_whitespace":true},
		{"type":"filter_rows","exclude_regex":"(?i)test","columns":["name"]},
		{"type":"regex_replace","pattern":"(?P<area>\\d{3})-(?P<line>\\d{4})","columns":["phone"],"outputs":{"area":"area_code"}},
		{"type":"conditional_transform","include_regex":"US","columns":["country"],"actions":[
			{"type":"concat_columns","sources":["city","state"],"target":"location","separator":", "}
		]}
	]`

	var ops []RowTransformation
	require.NoError(t, json.Unmarshal([]byte(raw), &ops))
	require.Len(t, ops, 5)

	require.NotNil(t, ops[0].ExplodeColumns)
	assert.Equal(t, []string{"email_1", "email_2"}, ops[0].ExplodeColumns.Sources)
	assert.True(t, ops[0].ExplodeColumns.DedupeValues)

	require.NotNil(t, ops[1].ExplodeListRows)
	assert.Equal(t, []string{";"}, ops[1].ExplodeListRows.Delimiters)

	require.NotNil(t, ops[2].FilterRows)
	assert.Equal(t, "(?i)test", ops[2].FilterRows.ExcludeRegex)

	require.NotNil(t, ops[3].RegexReplace)
	assert.Equal(t, "area_code", ops[3].RegexReplace.Outputs["area"])

	require.NotNil(t, ops[4].Conditional)
	require.Len(t, ops[4].Conditional.Actions, 1)
	require.NotNil(t, ops[4].Conditional.Actions[0].ConcatColumns)
	assert.Equal(t, "location", ops[4].Conditional.Actions[0].ConcatColumns.Target)

	for i := range ops {
		assert.NoError(t, ops[i].Validate(), "op %d", i)
	}
}

func TestRowTransformation_DecodeUnknownType(t *testing.T) {
	var op RowTransformation
	err := json.Unmarshal([]byte(`{"type":"pivot_table"}`), &op)
	assert.Error(t, err)
}

func TestRowTransformation_ValidateRejectsBadRegex(t *testing.T) {
	op := RowTransformation{
		Type:         TransformRegexReplace,
		RegexReplace: &RegexReplaceSpec{Pattern: "([", Columns: []string{"a"}},
	}
	assert.Error(t, op.Validate())
}

func TestRowTransformation_MarshalRoundTrip(t *testing.T) {
	op := RowTransformation{
		Type: TransformFilterRows,
		FilterRows: &FilterRowsSpec{
			IncludeRegex: "active",
			Columns:      []string{"status"},
		},
	}
	raw, err := json.Marshal(op)
	require.NoError(t, err)

	var decoded RowTransformation
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, TransformFilterRows, decoded.Type)
	require.NotNil(t, decoded.FilterRows)
	assert.Equal(t, "active", decoded.FilterRows.IncludeRegex)
}

func TestMappingConfig_Validate(t *testing.T) {
	cfg := testConfig()
	assert.NoError(t, cfg.Validate())

	bad := testConfig()
	bad.Mappings["ghost"] = "ghost_col"
	assert.Error(t, bad.Validate())

	bad2 := testConfig()
	bad2.DuplicateCheck.UniquenessColumns = []string{"missing"}
	assert.Error(t, bad2.Validate())
}

func TestNormalizeColumnType(t *testing.T) {
	tests := []struct {
		declared string
		want     ColumnType
	}{
		{"INTEGER", TypeInteger},
		{"bigint", TypeInteger},
		{"DECIMAL(10,2)", TypeDecimal},
		{"numeric", TypeDecimal},
		{"TIMESTAMP", TypeTimestamp},
		{"timestamptz", TypeTimestamp},
		{"VARCHAR(255)", TypeVarchar},
		{"jsonb", TypeText},
	}

	for _, tt := range tests {
		t.Run(tt.declared, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeColumnType(tt.declared))
		})
	}
}
