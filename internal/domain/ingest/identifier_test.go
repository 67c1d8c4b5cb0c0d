package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeIdentifier(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"already valid", "customer_name", "customer_name"},
		{"spaces", "First Name", "first_name"},
		{"mixed punctuation", "Price ($ USD)", "price_usd"},
		{"leading digit", "2024_sales", "_2024_sales"},
		{"dots and dashes", "order.date-v2", "order_date_v2"},
		{"empty", "", ""},
		{"only punctuation", "!!!", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeIdentifier(tt.input))
		})
	}
}

func TestSafeTableName(t *testing.T) {
	// Reserved names are suffixed, everything else passes through sanitized.
	assert.Equal(t, "users_user_data", SafeTableName("users"))
	assert.Equal(t, "import_history_user_data", SafeTableName("Import History"))
	assert.Equal(t, "clients", SafeTableName("clients"))
}

func TestIsProtectedTable(t *testing.T) {
	assert.True(t, IsProtectedTable("import_history"))
	assert.True(t, IsProtectedTable(" Users "))
	assert.True(t, IsProtectedTable("spatial_ref_sys"))
	assert.False(t, IsProtectedTable("users_user_data"))
	assert.False(t, IsProtectedTable("clients"))
}
