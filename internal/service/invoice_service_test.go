package service

import (
	"context"
	"fmt"
	"testing"

	"warehouse-billing/internal/model"
	"warehouse-billing/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateInvoice_THBEventScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	client := uuid.New()

	env.createService(t, "PICK", model.BillingBasisQty)
	env.createRate(t, "2026-02-01", "40.0")
	event := env.manualEvent(t, client, "PICK", "2026-02-10", "1", "120", model.PricingTHBBased)

	inv, err := env.invoices.Generate(ctx, GenerateInvoiceRequest{ClientID: client.String(), Month: "2026-02"}, env.actor)
	require.NoError(t, err)

	assert.Equal(t, model.InvoiceDraft, inv.Status)
	assert.Equal(t, fmt.Sprintf("KRW-%s-202602-0001", client), inv.InvoiceNo)
	assert.True(t, dec("4800").Equal(inv.Subtotal), "subtotal %s", inv.Subtotal)
	assert.True(t, dec("300").Equal(inv.VAT), "vat %s", inv.VAT)
	assert.True(t, dec("5100").Equal(inv.Total), "total %s", inv.Total)
	assert.Equal(t, "2026-02-28", inv.InvoiceDate.Format("2006-01-02"))

	stored := env.reloadEvent(t, event.ID)
	assert.Equal(t, model.BillingEventInvoiced, stored.Status)
	require.NotNil(t, stored.InvoiceID)
	assert.Equal(t, inv.ID, *stored.InvoiceID)
	assert.True(t, dec("40").Equal(stored.FxRateUsed.Decimal))
	assert.True(t, dec("4800").Equal(stored.InvoicedKRW.Decimal))

	rate, err := env.rateRepo.FindByID(ctx, *inv.ExchangeRateID)
	require.NoError(t, err)
	assert.True(t, rate.Locked, "generation locks the rate it used")
}

func TestGenerateInvoice_TotalsAreMultiplesOfHundred(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	client := uuid.New()

	env.createService(t, "PICK", model.BillingBasisQty)
	env.createService(t, "STORAGE", model.BillingBasisQty)
	env.createRate(t, "2026-01-31", "40")
	env.manualEvent(t, client, "PICK", "2026-02-02", "3", "120.5", model.PricingTHBBased)
	env.manualEvent(t, client, "PICK", "2026-02-03", "2", "10", model.PricingTHBBased)
	env.manualEvent(t, client, "STORAGE", "2026-02-20", "1", "12345", model.PricingKRWFixed)
	// outside the month
	env.manualEvent(t, client, "STORAGE", "2026-03-01", "1", "9999", model.PricingKRWFixed)

	inv, err := env.invoices.Generate(ctx, GenerateInvoiceRequest{ClientID: client.String(), Month: "2026-02"}, env.actor)
	require.NoError(t, err)

	loaded, err := env.invoices.Get(ctx, inv.ID.String())
	require.NoError(t, err)

	hundred := dec("100")
	sum := dec("0")
	byCode := map[string]model.InvoiceItem{}
	for _, it := range loaded.Items {
		assert.True(t, it.Amount.Mod(hundred).IsZero(), "%s amount %s", it.ServiceCode, it.Amount)
		byCode[it.ServiceCode] = it
		if it.ItemType != model.InvoiceItemVAT {
			sum = sum.Add(it.Amount)
		}
	}
	require.Len(t, byCode, 3)

	// 120.5*40 = 4820 -> 4800, 10*40 = 400; line 5200
	assert.True(t, dec("5200").Equal(byCode["PICK"].Amount), "PICK %s", byCode["PICK"].Amount)
	assert.True(t, dec("5").Equal(byCode["PICK"].Qty))
	assert.True(t, dec("1040").Equal(byCode["PICK"].UnitPrice))
	assert.True(t, dec("12300").Equal(byCode["STORAGE"].Amount))

	assert.True(t, sum.Equal(loaded.Subtotal))
	assert.True(t, sum.Add(loaded.VAT).Equal(loaded.Total))
	assert.True(t, dec("17500").Equal(loaded.Subtotal), "subtotal %s", loaded.Subtotal)
	assert.True(t, dec("1200").Equal(loaded.VAT), "vat %s", loaded.VAT)
	assert.True(t, dec("18700").Equal(loaded.Total), "total %s", loaded.Total)
	for _, v := range []string{loaded.Subtotal.String(), loaded.VAT.String(), loaded.Total.String()} {
		assert.True(t, dec(v).Mod(hundred).IsZero(), v)
	}
}

func TestGenerateInvoice_IsIdempotentWithoutRegenerate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	client := uuid.New()

	env.createService(t, "PICK", model.BillingBasisQty)
	env.createRate(t, "2026-02-01", "40")
	env.manualEvent(t, client, "PICK", "2026-02-10", "1", "120", model.PricingTHBBased)

	req := GenerateInvoiceRequest{ClientID: client.String(), Month: "2026-02"}
	first, err := env.invoices.Generate(ctx, req, env.actor)
	require.NoError(t, err)

	// a late event is not picked up by a repeated call
	env.manualEvent(t, client, "PICK", "2026-02-11", "1", "50", model.PricingTHBBased)

	second, err := env.invoices.Generate(ctx, req, env.actor)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.InvoiceNo, second.InvoiceNo)
	assert.True(t, first.Total.Equal(second.Total))
}

func TestGenerateInvoice_RegenerateReleasesPreviousEvents(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	client := uuid.New()

	env.createService(t, "PICK", model.BillingBasisQty)
	env.createRate(t, "2026-02-01", "40")
	e1 := env.manualEvent(t, client, "PICK", "2026-02-10", "1", "120", model.PricingTHBBased)

	req := GenerateInvoiceRequest{ClientID: client.String(), Month: "2026-02"}
	first, err := env.invoices.Generate(ctx, req, env.actor)
	require.NoError(t, err)

	e2 := env.manualEvent(t, client, "PICK", "2026-02-12", "1", "30", model.PricingTHBBased)

	req.Regenerate = true
	second, err := env.invoices.Generate(ctx, req, env.actor)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, fmt.Sprintf("KRW-%s-202602-0002", client), second.InvoiceNo)
	assert.True(t, dec("6000").Equal(second.Subtotal), "subtotal %s", second.Subtotal)

	var old model.Invoice
	require.NoError(t, env.db.First(&old, "id = ?", first.ID).Error)
	assert.Equal(t, model.RowTombstoned, old.State)

	var stale int64
	require.NoError(t, env.db.Model(&model.BillingEvent{}).Where("invoice_id = ?", first.ID).Count(&stale).Error)
	assert.Zero(t, stale, "no event stays linked to the discarded draft")

	for _, id := range []uuid.UUID{e1.ID, e2.ID} {
		ev := env.reloadEvent(t, id)
		assert.Equal(t, model.BillingEventInvoiced, ev.Status)
		require.NotNil(t, ev.InvoiceID)
		assert.Equal(t, second.ID, *ev.InvoiceID)
	}

	_, err = env.invoices.Get(ctx, first.ID.String())
	assert.NoError(t, err, "tombstoned invoices stay readable by id")
}

func TestGenerateInvoice_NoPendingEvents(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	client := uuid.New()
	env.createRate(t, "2026-02-01", "40")

	_, err := env.invoices.Generate(ctx, GenerateInvoiceRequest{ClientID: client.String(), Month: "2026-02"}, env.actor)
	require.Error(t, err)
	assert.Equal(t, apperror.CodeNoPendingEvents, apperror.CodeOf(err))
	assert.Equal(t, apperror.KindPreconditionFailed, apperror.KindOf(err))

	var invoices, sequences int64
	require.NoError(t, env.db.Model(&model.Invoice{}).Count(&invoices).Error)
	require.NoError(t, env.db.Model(&model.InvoiceSequence{}).Count(&sequences).Error)
	assert.Zero(t, invoices)
	assert.Zero(t, sequences, "the sequence allocation is rolled back")
}

func TestGenerateInvoice_RequiresExchangeRate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	client := uuid.New()

	env.createService(t, "PICK", model.BillingBasisQty)
	env.createRate(t, "2026-03-01", "40") // after the month end
	env.manualEvent(t, client, "PICK", "2026-02-10", "1", "120", model.PricingTHBBased)

	_, err := env.invoices.Generate(ctx, GenerateInvoiceRequest{ClientID: client.String(), Month: "2026-02"}, env.actor)
	require.Error(t, err)
	assert.Equal(t, apperror.CodeFXNotFound, apperror.CodeOf(err))
}

func TestGenerateInvoice_RejectsMissingActorAndBadInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.invoices.Generate(ctx, GenerateInvoiceRequest{ClientID: uuid.NewString(), Month: "2026-02"}, uuid.Nil)
	assert.Equal(t, apperror.CodeActorRequired, apperror.CodeOf(err))

	_, err = env.invoices.Generate(ctx, GenerateInvoiceRequest{ClientID: uuid.NewString(), Month: "2026-13"}, env.actor)
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
}

func TestInvoiceLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	client := uuid.New()

	env.createService(t, "PICK", model.BillingBasisQty)
	env.createRate(t, "2026-02-01", "40")
	env.manualEvent(t, client, "PICK", "2026-02-10", "1", "120", model.PricingTHBBased)

	req := GenerateInvoiceRequest{ClientID: client.String(), Month: "2026-02"}
	inv, err := env.invoices.Generate(ctx, req, env.actor)
	require.NoError(t, err)

	_, err = env.invoices.MarkPaid(ctx, inv.ID.String(), env.actor)
	assert.Equal(t, apperror.CodeInvalidStatus, apperror.CodeOf(err), "a draft cannot be paid")

	issued, err := env.invoices.Issue(ctx, inv.ID.String(), env.actor)
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceIssued, issued.Status)
	require.NotNil(t, issued.IssuedAt)
	firstIssuedAt := *issued.IssuedAt

	_, err = env.invoices.Issue(ctx, inv.ID.String(), env.actor)
	require.Error(t, err)
	assert.Equal(t, apperror.CodeInvalidStatus, apperror.CodeOf(err))
	assert.Equal(t, apperror.KindInvalidState, apperror.KindOf(err))

	again, err := env.invoices.Get(ctx, inv.ID.String())
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceIssued, again.Status)
	assert.True(t, firstIssuedAt.Equal(*again.IssuedAt))

	_, err = env.invoices.Generate(ctx, req, env.actor)
	assert.Equal(t, apperror.CodeInvoiceIssued, apperror.CodeOf(err))

	paid, err := env.invoices.MarkPaid(ctx, inv.ID.String(), env.actor)
	require.NoError(t, err)
	assert.Equal(t, model.InvoicePaid, paid.Status)

	_, err = env.invoices.MarkPaid(ctx, inv.ID.String(), env.actor)
	assert.Equal(t, apperror.CodeInvalidStatus, apperror.CodeOf(err))
}

func TestDuplicateInvoice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	client := uuid.New()

	env.createService(t, "PICK", model.BillingBasisQty)
	env.createRate(t, "2026-02-01", "40")
	env.manualEvent(t, client, "PICK", "2026-02-10", "1", "120", model.PricingTHBBased)

	src, err := env.invoices.Generate(ctx, GenerateInvoiceRequest{ClientID: client.String(), Month: "2026-02"}, env.actor)
	require.NoError(t, err)
	_, err = env.invoices.Issue(ctx, src.ID.String(), env.actor)
	require.NoError(t, err)

	dup, err := env.invoices.Duplicate(ctx, src.ID.String(), env.actor)
	require.NoError(t, err)
	assert.NotEqual(t, src.ID, dup.ID)
	assert.Equal(t, model.InvoiceDraft, dup.Status)
	assert.Equal(t, model.InvoiceOriginDuplicate, dup.Origin)
	assert.Equal(t, fmt.Sprintf("KRW-%s-202602-0002", client), dup.InvoiceNo)
	require.NotNil(t, dup.DuplicatedFromID)
	assert.Equal(t, src.ID, *dup.DuplicatedFromID)
	assert.True(t, src.Total.Equal(dup.Total))

	loaded, err := env.invoices.Get(ctx, dup.ID.String())
	require.NoError(t, err)
	assert.Len(t, loaded.Items, 2)

	source, err := env.invoices.Get(ctx, src.ID.String())
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceIssued, source.Status, "source is untouched")
}

func TestListInvoices(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	client := uuid.New()

	env.createService(t, "PICK", model.BillingBasisQty)
	env.createRate(t, "2026-01-01", "40")
	env.manualEvent(t, client, "PICK", "2026-01-10", "1", "120", model.PricingTHBBased)
	env.manualEvent(t, client, "PICK", "2026-02-10", "1", "120", model.PricingTHBBased)

	for _, month := range []string{"2026-01", "2026-02"} {
		_, err := env.invoices.Generate(ctx, GenerateInvoiceRequest{ClientID: client.String(), Month: month}, env.actor)
		require.NoError(t, err)
	}

	all, total, err := env.invoices.List(ctx, InvoiceQuery{ClientID: client.String()})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, all, 2)

	feb, total, err := env.invoices.List(ctx, InvoiceQuery{ClientID: client.String(), Month: "2026-02"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "2026-02", feb[0].BillingMonth)
	assert.Equal(t, "5100", feb[0].Total)
}
