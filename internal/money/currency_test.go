package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAmounts_LSEMinorUnit(t *testing.T) {
	unitPrice := 12050.0
	fee := 250.0

	major, normPrice, _, normFee := NormalizeAmounts("GBp", &unitPrice, nil, &fee)

	assert.Equal(t, "GBP", major)
	assert.InDelta(t, 120.50, *normPrice, 0.0001)
	assert.InDelta(t, 2.50, *normFee, 0.0001)
}

func TestNormalizeAmounts_NonMinorUnchanged(t *testing.T) {
	amount := 100.0
	major, _, normAmount, _ := NormalizeAmounts("USD", nil, &amount, nil)

	assert.Equal(t, "USD", major)
	assert.Equal(t, 100.0, *normAmount)
}

func TestNormalizeAmounts_NilFieldsStayNil(t *testing.T) {
	_, price, amount, fee := NormalizeAmounts("GBp", nil, nil, nil)
	assert.Nil(t, price)
	assert.Nil(t, amount)
	assert.Nil(t, fee)
}

func TestIsMinorUnit(t *testing.T) {
	assert.True(t, IsMinorUnit("GBp"))
	assert.False(t, IsMinorUnit("GBP"))
}

func TestMajorCode(t *testing.T) {
	assert.Equal(t, "GBP", MajorCode("GBp"))
	assert.Equal(t, "USD", MajorCode("USD"))
}
