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

func TestBillingStatistics(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	client := uuid.New()

	env.createRate(t, "2026-02-01", "40")
	env.createService(t, "PICK", model.BillingBasisQty)
	env.createService(t, "STORAGE", model.BillingBasisManual)
	env.manualEvent(t, client, "PICK", "2026-02-03", "2", "60", model.PricingTHBBased)
	env.manualEvent(t, client, "PICK", "2026-02-04", "1", "60", model.PricingTHBBased)
	env.manualEvent(t, client, "STORAGE", "2026-02-05", "1", "300", model.PricingKRWFixed)

	q := StatisticsQuery{ClientID: client.String(), FromMonth: "2026-02", ToMonth: "2026-02"}
	stats, err := env.stats.GetBillingStatistics(ctx, q)
	require.NoError(t, err)
	assert.Empty(t, stats.Revenue)
	assert.Equal(t, int64(3), stats.PendingEvents)
	require.Len(t, stats.TopServices, 2)
	assert.Equal(t, "PICK", stats.TopServices[0].ServiceCode)
	assert.Equal(t, int64(2), stats.TopServices[0].Events)
	assert.True(t, dec("120").Equal(stats.TopServices[0].AmountTHB))
	assert.True(t, dec("3").Equal(stats.TopServices[0].TotalQty))
	assert.True(t, dec("300").Equal(stats.TopServices[1].AmountKRW))

	inv, err := env.invoices.Generate(ctx, GenerateInvoiceRequest{ClientID: client.String(), Month: "2026-02"}, env.actor)
	require.NoError(t, err)

	stats, err = env.stats.GetBillingStatistics(ctx, q)
	require.NoError(t, err)
	assert.Empty(t, stats.Revenue, "drafts are not revenue")
	assert.Zero(t, stats.PendingEvents)

	_, err = env.invoices.Issue(ctx, inv.ID.String(), env.actor)
	require.NoError(t, err)

	stats, err = env.stats.GetBillingStatistics(ctx, q)
	require.NoError(t, err)
	require.Len(t, stats.Revenue, 1)
	assert.Equal(t, "2026-02", stats.Revenue[0].BillingMonth)
	assert.Equal(t, int64(1), stats.Revenue[0].Invoices)
	assert.True(t, inv.Total.Equal(stats.Revenue[0].Total))
}

func TestBillingStatistics_RejectsBadRange(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.stats.GetBillingStatistics(context.Background(), StatisticsQuery{FromMonth: "2026-03", ToMonth: "2026-02"})
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))

	_, err = env.stats.GetBillingStatistics(context.Background(), StatisticsQuery{ToMonth: "2026-13"})
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
}
