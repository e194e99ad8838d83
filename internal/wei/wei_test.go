package wei

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToWeiDecimalString(t *testing.T) {
	n, err := ToWei("0.001")
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000", n.String())

	n, err = ToWei("1.5")
	require.NoError(t, err)
	assert.Equal(t, "1500000000000000000", n.String())

	n, err = ToWei("0.000000000000000001")
	require.NoError(t, err)
	assert.Equal(t, "1", n.String())
}

func TestToWeiIntegerForms(t *testing.T) {
	n, err := ToWei(2)
	require.NoError(t, err)
	assert.Equal(t, "2000000000000000000", n.String())

	// Short integer string: whole ether.
	n, err = ToWei("3")
	require.NoError(t, err)
	assert.Equal(t, "3000000000000000000", n.String())

	// Long integer string: already wei.
	n, err = ToWei("1000000000000000000")
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", n.String())
}

func TestToWeiRejects(t *testing.T) {
	for _, bad := range []any{
		"", "-1", "1.2.3", "abc", "0.0000000000000000001", "1.",
		-1, 1.5, struct{}{},
	} {
		_, err := ToWei(bad)
		assert.ErrorIs(t, err, ErrBadAmount, "input %v", bad)
	}
}

func TestToDecimal(t *testing.T) {
	assert.Equal(t, "0", ToDecimal(nil))
	assert.Equal(t, "0", ToDecimal(big.NewInt(0)))
	assert.Equal(t, "1", ToDecimal(MustWei("1.0")))
	assert.Equal(t, "0.001", ToDecimal(MustWei("0.001")))
	assert.Equal(t, "1.289", ToDecimal(MustWei("1.289")))
	assert.Equal(t, "0.000000000000000001", ToDecimal(big.NewInt(1)))
}

func TestRoundTripIdentity(t *testing.T) {
	for _, s := range []string{
		"1", "7", "1000000000000000001", "999", "123456789123456789",
		"290000000000000000", "5000000000000000000",
	} {
		x, ok := new(big.Int).SetString(s, 10)
		require.True(t, ok)
		back, err := ToWei(ToDecimal(x))
		require.NoError(t, err)
		assert.Zero(t, x.Cmp(back), "round trip of %s wei", s)
	}
}
