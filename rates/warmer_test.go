package rates_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/seabucks/dealer"
	"github.com/seabucks/dealer/rates"
)

func allRates() map[string]decimal.Decimal {
	out := map[string]decimal.Decimal{}
	for _, code := range dealer.CurrencyCodes() {
		out[code] = rate("1.5")
	}
	return out
}

func TestChain_RefreshBypassesCache(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	primary := newMockProvider(ctrl, rates.SourceExchangeRateAPI)
	primary.EXPECT().
		Fetch(gomock.Any(), []string{"SGD"}).
		Return(map[string]decimal.Decimal{"SGD": rate("1.34")}, nil).
		Times(2)

	chain := rates.NewChain(rates.WithProviders(primary))

	_, err := chain.GetRate(t.Context(), "SGD")
	require.NoError(t, err)

	// Act: a refresh inside the TTL still goes upstream.
	refreshed, err := chain.Refresh(t.Context(), []string{"SGD"})
	require.NoError(t, err)
	assert.Equal(t, rates.SourceExchangeRateAPI, refreshed["SGD"].Source)

	// Assert: the next lookup is a cache hit.
	cached, err := chain.GetRate(t.Context(), "SGD")
	require.NoError(t, err)
	assert.Equal(t, rates.SourceExchangeRateAPI+" (cached)", cached.Source)
}

func TestWarmer_StartWarmsCache(t *testing.T) {
	t.Parallel()

	// Arrange: the warmer's first pass fetches every registered currency in one call.
	ctrl := gomock.NewController(t)
	primary := newMockProvider(ctrl, rates.SourceExchangeRateAPI)
	primary.EXPECT().
		Fetch(gomock.Any(), gomock.Len(len(dealer.CurrencyCodes()))).
		Return(allRates(), nil).
		MinTimes(1)

	chain := rates.NewChain(rates.WithProviders(primary), rates.WithTTL(time.Hour))
	warmer := rates.NewWarmer(chain, 30*time.Minute, nil)

	// Act
	require.NoError(t, warmer.Start(t.Context()))
	defer warmer.Stop()

	// Assert
	r, err := chain.GetRate(t.Context(), "MMK")
	require.NoError(t, err)
	assert.Equal(t, rates.SourceExchangeRateAPI+" (cached)", r.Source)
	assert.True(t, r.Rate.Equal(rate("1.5")))
}

func TestWarmer_InvalidInterval(t *testing.T) {
	t.Parallel()

	warmer := rates.NewWarmer(rates.NewChain(rates.WithProviders()), 0, nil)
	require.Error(t, warmer.Start(context.Background()))
}

func TestWarmer_CanceledContextSkipsFetch(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	primary := newMockProvider(ctrl, rates.SourceExchangeRateAPI)
	primary.EXPECT().Fetch(gomock.Any(), gomock.Any()).Times(0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	warmer := rates.NewWarmer(rates.NewChain(rates.WithProviders(primary)), time.Hour, nil)
	require.NoError(t, warmer.Start(ctx))
	warmer.Stop()
}
