package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "tradeloop:price:ACME", priceKey("ACME"))
	assert.Equal(t, "tradeloop:lock:algo:momo", lockKey("algo:momo"))
}

func TestParsePrice(t *testing.T) {
	ts := time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)
	price, got, err := parsePrice(map[string]string{
		"price": "101.25",
		"ts":    "1704207600000000000",
	})
	require.NoError(t, err)
	assert.InDelta(t, 101.25, price, 1e-12)
	assert.True(t, got.Equal(ts))

	_, _, err = parsePrice(map[string]string{})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, _, err = parsePrice(map[string]string{"price": "abc"})
	assert.Error(t, err)

	price, got, err = parsePrice(map[string]string{"price": "7"})
	require.NoError(t, err)
	assert.InDelta(t, 7, price, 1e-12)
	assert.True(t, got.IsZero())
}
