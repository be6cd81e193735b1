package service

import (
	"context"
	"testing"

	"warehouse-billing/internal/model"
	"warehouse-billing/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExchangeRate_CreateRejectsDuplicateDate(t *testing.T) {
	env := newTestEnv(t)
	env.createRate(t, "2026-02-01", "40")

	_, err := env.rates.Create(context.Background(), CreateExchangeRateRequest{
		BaseCurrency:  "thb",
		QuoteCurrency: "krw",
		RateDate:      "2026-02-01",
		Rate:          "41",
	}, env.actor)
	require.Error(t, err)
	assert.Equal(t, apperror.CodeDuplicateRate, apperror.CodeOf(err))
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))
}

func TestExchangeRate_CreateValidates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := []CreateExchangeRateRequest{
		{BaseCurrency: "THB", QuoteCurrency: "THB", RateDate: "2026-02-01", Rate: "1"},
		{BaseCurrency: "USD", QuoteCurrency: "KRW", RateDate: "2026-02-01", Rate: "1"},
		{BaseCurrency: "THB", QuoteCurrency: "KRW", RateDate: "02/01/2026", Rate: "1"},
		{BaseCurrency: "THB", QuoteCurrency: "KRW", RateDate: "2026-02-01", Rate: "0"},
		{BaseCurrency: "THB", QuoteCurrency: "KRW", RateDate: "2026-02-01", Rate: "40", Status: "bogus"},
	}
	for _, req := range cases {
		_, err := env.rates.Create(ctx, req, env.actor)
		assert.Equal(t, apperror.KindValidation, apperror.KindOf(err), "%+v", req)
	}
}

func TestExchangeRate_FindOnOrBeforePicksLatest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createRate(t, "2026-01-15", "39")
	env.createRate(t, "2026-02-01", "40")
	env.createRate(t, "2026-03-01", "41")

	rate, err := env.rates.FindRateOnOrBefore(ctx, "THB", "KRW", mustDate(t, "2026-02-28"))
	require.NoError(t, err)
	require.NotNil(t, rate)
	assert.True(t, dec("40").Equal(rate.Rate))

	rate, err = env.rates.FindRateOnOrBefore(ctx, "THB", "KRW", mustDate(t, "2026-01-01"))
	require.NoError(t, err)
	assert.Nil(t, rate)
}

func TestExchangeRate_LockedRateIsImmutable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rate := env.createRate(t, "2026-02-01", "40")

	updated, err := env.rates.Update(ctx, rate.ID.String(), UpdateExchangeRateRequest{Rate: "40.5"}, env.actor)
	require.NoError(t, err)
	assert.True(t, dec("40.5").Equal(updated.Rate))

	locked, err := env.rates.LockRate(ctx, rate.ID.String(), env.actor)
	require.NoError(t, err)
	assert.True(t, locked.Locked)

	_, err = env.rates.LockRate(ctx, rate.ID.String(), env.actor)
	assert.NoError(t, err, "locking twice is a no-op")

	_, err = env.rates.Update(ctx, rate.ID.String(), UpdateExchangeRateRequest{Rate: "42"}, env.actor)
	require.Error(t, err)
	assert.Equal(t, apperror.KindLocked, apperror.KindOf(err))

	err = env.rates.Delete(ctx, rate.ID.String(), env.actor)
	assert.Equal(t, apperror.KindLocked, apperror.KindOf(err))

	stored, err := env.rates.Get(ctx, rate.ID.String())
	require.NoError(t, err)
	assert.True(t, dec("40.5").Equal(stored.Rate))
}

func TestExchangeRate_UsedByInvoiceIsImmutable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	client := uuid.New()

	rate := env.createRate(t, "2026-02-01", "40")
	env.createService(t, "PICK", model.BillingBasisQty)
	env.manualEvent(t, client, "PICK", "2026-02-10", "1", "120", model.PricingTHBBased)

	_, err := env.invoices.Generate(ctx, GenerateInvoiceRequest{ClientID: client.String(), Month: "2026-02"}, env.actor)
	require.NoError(t, err)

	err = env.rates.Delete(ctx, rate.ID.String(), env.actor)
	assert.Equal(t, apperror.KindLocked, apperror.KindOf(err))
}

func TestExchangeRate_DeleteTombstones(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rate := env.createRate(t, "2026-02-01", "40")

	require.NoError(t, env.rates.Delete(ctx, rate.ID.String(), env.actor))

	found, err := env.rates.FindRateOnOrBefore(ctx, "THB", "KRW", mustDate(t, "2026-02-10"))
	require.NoError(t, err)
	assert.Nil(t, found)

	// the date is free again
	env.createRate(t, "2026-02-01", "41")
}
