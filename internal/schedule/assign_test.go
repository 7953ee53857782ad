package schedule

import (
	"testing"

	"lexlab/internal/catalog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignVariant(t *testing.T) {
	tests := []struct {
		code string
		want catalog.Variant
	}{
		{"001", catalog.VariantTest1},
		{"005", catalog.VariantTest1},
		{"006", catalog.VariantTest2},
		{"007", catalog.VariantTest2},
		{"010", catalog.VariantTest2},
		{"011", catalog.VariantTest3},
		{"015", catalog.VariantTest3},
		{"016", catalog.VariantTest4},
		{"020", catalog.VariantTest4},
		// The cycle wraps after 20: code 21 lands where code 1 did.
		{"021", catalog.VariantTest1},
		{"026", catalog.VariantTest2},
		{"033", catalog.VariantTest3},
		{"040", catalog.VariantTest4},
		// Leading zeros and surrounding whitespace are tolerated.
		{"7", catalog.VariantTest2},
		{" 012 ", catalog.VariantTest3},
	}

	for _, tt := range tests {
		got, err := AssignVariant(tt.code)
		require.NoError(t, err, "code %q", tt.code)
		assert.Equal(t, tt.want, got, "code %q", tt.code)
	}
}

func TestAssignVariantRejectsBadCodes(t *testing.T) {
	for _, code := range []string{"", "0", "000", "041", "100", "-3", "abc", "1.5"} {
		_, err := AssignVariant(code)
		assert.ErrorIs(t, err, ErrInvalidIdentifier, "code %q", code)
	}
}

func TestAssignVariantIsDeterministic(t *testing.T) {
	first, err := AssignVariant("017")
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := AssignVariant("017")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
