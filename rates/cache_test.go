package rates_test

import (
	"testing"
	"time"

	"github.com/seabucks/dealer"
	"github.com/seabucks/dealer/rates"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_BoundedToAdmittedCodes(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := rates.NewCache(time.Minute, []string{"IDR", "THB"})

	c.Put(dealer.ExchangeRate{Currency: "IDR", Rate: rate("16250"), Source: "x", Timestamp: now})
	c.Put(dealer.ExchangeRate{Currency: "EUR", Rate: rate("0.9"), Source: "x", Timestamp: now})

	assert.Equal(t, 1, c.Len())
	_, ok := c.Get("EUR", now)
	assert.False(t, ok)
}

func TestCache_LastWriterWins(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := rates.NewCache(time.Minute, []string{"IDR"})

	c.Put(dealer.ExchangeRate{Currency: "IDR", Rate: rate("16250"), Source: "a", Timestamp: now})
	c.Put(dealer.ExchangeRate{Currency: "IDR", Rate: rate("16300"), Source: "b", Timestamp: now})

	got, ok := c.Get("IDR", now.Add(time.Second))
	require.True(t, ok)
	assert.Equal(t, "b (cached)", got.Source)
	assert.True(t, got.Rate.Equal(rate("16300")))

	_, ok = c.Get("IDR", now.Add(time.Minute))
	assert.False(t, ok, "entry must expire once its age reaches the TTL")
}
