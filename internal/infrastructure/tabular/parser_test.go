package tabular

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestParseCSV(t *testing.T) {
	data := []byte("id,name,age\n1,John Doe,30\n2,Jane Smith,25\n")
	table, err := Parse(data, KindCSV)
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "name", "age"}, table.Headers)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, 1, table.Rows[0].SourceRowNumber)
	assert.Equal(t, "John Doe", table.Rows[0].Values["name"])
	assert.Equal(t, 2, table.Rows[1].SourceRowNumber)
	assert.Equal(t, "25", table.Rows[1].Values["age"])
}

func TestParseCSV_BOM(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("a,b\n1,2\n")...)
	table, err := Parse(data, KindCSV)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, table.Headers)
}

func TestParseCSV_InvalidEncoding(t *testing.T) {
	// Latin-1 bytes that are not valid UTF-8
	data := []byte("name\n\xE9\xE8\xFF\n")
	_, err := Parse(data, KindCSV)
	assert.ErrorIs(t, err, ErrInvalidEncoding)
}

func TestParseCSV_EmptyAndHeaderOnly(t *testing.T) {
	_, err := Parse(nil, KindCSV)
	assert.ErrorIs(t, err, ErrEmptyFile)

	table, err := Parse([]byte("a,b\n"), KindCSV)
	require.NoError(t, err)
	assert.Empty(t, table.Rows)
}

func TestParseCSV_SkipsEmptyRows(t *testing.T) {
	data := []byte("a,b\n1,2\n,\n3,4\n")
	table, err := Parse(data, KindCSV)
	require.NoError(t, err)
	// The blank row is skipped and does not consume a source row number.
	require.Len(t, table.Rows, 2)
	assert.Equal(t, 2, table.Rows[1].SourceRowNumber)
	assert.Equal(t, "3", table.Rows[1].Values["a"])
}

func TestParseCSV_RoundTrip(t *testing.T) {
	data := []byte("id,name\n1,John\n2,Jane\n")
	table, err := Parse(data, KindCSV)
	require.NoError(t, err)

	out, err := WriteCSV(table)
	require.NoError(t, err)

	again, err := Parse(out, KindCSV)
	require.NoError(t, err)
	assert.Equal(t, table.Headers, again.Headers)
	require.Equal(t, len(table.Rows), len(again.Rows))
	for i := range table.Rows {
		assert.Equal(t, table.Rows[i].Values, again.Rows[i].Values)
	}
}

func TestParseJSON_ArrayOfObjects(t *testing.T) {
	data := []byte(`[{"id":1,"name":"John","active":true},{"id":2,"name":"Jane","note":null}]`)
	table, err := Parse(data, KindJSON)
	require.NoError(t, err)

	// First object's key order is preserved; later-only keys appended.
	assert.Equal(t, []string{"id", "name", "active", "note"}, table.Headers)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "1", table.Rows[0].Values["id"])
	assert.Equal(t, "true", table.Rows[0].Values["active"])
	assert.Equal(t, "", table.Rows[1].Values["note"])
	assert.Equal(t, 2, table.Rows[1].SourceRowNumber)
}

func TestParseJSON_ObjectOfArrays(t *testing.T) {
	data := []byte(`{"id":[1,2,3],"name":["a","b","c"]}`)
	table, err := Parse(data, KindJSON)
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "name"}, table.Headers)
	require.Len(t, table.Rows, 3)
	assert.Equal(t, "b", table.Rows[1].Values["name"])
	assert.Equal(t, 3, table.Rows[2].SourceRowNumber)
}

func TestParseJSON_Malformed(t *testing.T) {
	_, err := Parse([]byte(`"just a string"`), KindJSON)
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Parse([]byte(`[]`), KindJSON)
	assert.ErrorIs(t, err, ErrNoDataRows)
}

func TestParseXML(t *testing.T) {
	data := []byte(`<records>
		<record><id>1</id><name>John</name></record>
		<record><id>2</id><name>Jane</name><extra>x</extra></record>
	</records>`)
	table, err := Parse(data, KindXML)
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "name", "extra"}, table.Headers)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "John", table.Rows[0].Values["name"])
	// Missing fields are backfilled as empty.
	assert.Equal(t, "", table.Rows[0].Values["extra"])
	assert.Equal(t, 2, table.Rows[1].SourceRowNumber)
}

func TestParseExcel(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"id", "name"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{1, "John"}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]any{2, "Jane"}))

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	table, err := Parse(buf.Bytes(), KindXLSX)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, table.Headers)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "Jane", table.Rows[1].Values["name"])
	assert.Equal(t, 2, table.Rows[1].SourceRowNumber)
}

func TestKindFromName(t *testing.T) {
	kind, err := KindFromName("data.CSV")
	require.NoError(t, err)
	assert.Equal(t, KindCSV, kind)

	kind, err = KindFromName("report.xlsx")
	require.NoError(t, err)
	assert.Equal(t, KindXLSX, kind)

	_, err = KindFromName("archive.zip")
	assert.Error(t, err)

	_, err = KindFromName("noextension")
	assert.Error(t, err)
}
