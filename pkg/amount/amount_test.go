package amount

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want int
	}{
		{"equal", "0.01", "0.01", 0},
		{"equal with trailing zeros", "0.010", "0.01", 0},
		{"less", "0.009999999999999999", "0.01", -1},
		{"greater", "15", "14.999", 1},
		{"float trap", "0.3", "0.1", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compare(tt.a, tt.b)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Compare("abc", "1")
	assert.Error(t, err)
}

func TestToBaseUnits(t *testing.T) {
	wei, err := ToBaseUnits("0.01", 18)
	require.NoError(t, err)
	assert.Equal(t, "10000000000000000", wei.String())

	lamports, err := ToBaseUnits("0.5", 9)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(500_000_000), lamports)

	_, err = ToBaseUnits("0.0000001", 6)
	assert.Error(t, err)

	_, err = ToBaseUnits("-1", 6)
	assert.Error(t, err)
}

func TestFromBaseUnits(t *testing.T) {
	v, _ := new(big.Int).SetString("10000000000000000", 10)
	assert.Equal(t, "0.01", FromBaseUnits(v, 18))
	assert.Equal(t, "15", FromBaseUnits(big.NewInt(15_000_000), 6))
	assert.Equal(t, "0", FromBaseUnits(nil, 18))
}

func TestIsPositive(t *testing.T) {
	assert.True(t, IsPositive("0.01"))
	assert.False(t, IsPositive("0"))
	assert.False(t, IsPositive("-1"))
	assert.False(t, IsPositive("x"))
}
