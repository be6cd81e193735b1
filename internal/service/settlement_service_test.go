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

func seedSettlement(t *testing.T, env *testEnv) (uuid.UUID, *model.SettlementBatch) {
	t.Helper()
	client := uuid.New()
	env.createService(t, "PICK", model.BillingBasisQty)
	env.createService(t, "STORAGE", model.BillingBasisQty)
	env.createRate(t, "2026-02-01", "40")
	env.manualEvent(t, client, "PICK", "2026-02-05", "2", "120.5", model.PricingTHBBased)
	env.manualEvent(t, client, "STORAGE", "2026-02-07", "1", "1000.25", model.PricingKRWFixed)

	batch, err := env.settlements.Generate(context.Background(), GenerateSettlementRequest{
		ClientID: client.String(),
		Month:    "2026-02",
	}, env.actor)
	require.NoError(t, err)
	return client, batch
}

func TestGenerateSettlementBatch(t *testing.T) {
	env := newTestEnv(t)
	_, batch := seedSettlement(t, env)

	assert.Equal(t, model.SettlementReviewed, batch.Status)
	assert.Equal(t, 2, batch.LineCount)
	assert.True(t, dec("120.5").Equal(batch.SubtotalTHB))
	assert.True(t, dec("1000.25").Equal(batch.SubtotalKRW))
	// 1000.25 + 120.5*40
	assert.True(t, dec("5820.25").Equal(batch.TotalKRW), "total %s", batch.TotalKRW)

	currencies := map[string]int{}
	for _, l := range batch.Lines {
		currencies[l.Currency]++
	}
	assert.Equal(t, map[string]int{model.CurrencyTHB: 1, model.CurrencyKRW: 1}, currencies)
}

func TestGenerateSettlementBatch_RegenerateReplacesLines(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	client, batch := seedSettlement(t, env)

	env.manualEvent(t, client, "PICK", "2026-02-20", "1", "10", model.PricingTHBBased)
	again, err := env.settlements.Generate(ctx, GenerateSettlementRequest{ClientID: client.String(), Month: "2026-02"}, env.actor)
	require.NoError(t, err)
	assert.Equal(t, batch.ID, again.ID)
	assert.Equal(t, 3, again.LineCount)

	lines, err := env.settlementRepo.ListLines(ctx, batch.ID)
	require.NoError(t, err)
	assert.Len(t, lines, 3)
}

func TestGenerateSettlementBatch_RequiresRate(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.settlements.Generate(context.Background(), GenerateSettlementRequest{
		ClientID: uuid.NewString(),
		Month:    "2026-02",
	}, env.actor)
	assert.Equal(t, apperror.CodeFXNotFound, apperror.CodeOf(err))
}

func TestSettlementClose(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	client, batch := seedSettlement(t, env)

	closed, err := env.settlements.Close(ctx, batch.ID.String(), env.actor)
	require.NoError(t, err)
	assert.Equal(t, model.SettlementClosed, closed.Status)
	require.NotNil(t, closed.ClosedBy)
	assert.Equal(t, env.actor, *closed.ClosedBy)

	_, err = env.settlements.Close(ctx, batch.ID.String(), env.actor)
	require.Error(t, err)
	assert.Equal(t, apperror.CodeAlreadyClosed, apperror.CodeOf(err))

	_, err = env.settlements.Generate(ctx, GenerateSettlementRequest{ClientID: client.String(), Month: "2026-02"}, env.actor)
	assert.Equal(t, apperror.CodeAlreadyClosed, apperror.CodeOf(err), "a closed batch is not recalculated")

	detail, err := env.settlements.GetBatch(ctx, batch.ID.String())
	require.NoError(t, err)
	require.Len(t, detail.Logs, 1)
	assert.Equal(t, model.SettlementActionClose, detail.Logs[0].Action)
}

func TestSettlementReopenWorkflow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, batch := seedSettlement(t, env)
	id := batch.ID.String()

	_, err := env.settlements.RequestReopen(ctx, id, ReopenRequestInput{Reason: "wrong qty"}, env.actor)
	assert.Equal(t, apperror.CodeBatchNotClosed, apperror.CodeOf(err), "only closed batches can be reopened")

	_, err = env.settlements.Close(ctx, id, env.actor)
	require.NoError(t, err)

	_, err = env.settlements.RequestReopen(ctx, id, ReopenRequestInput{Reason: "  "}, env.actor)
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))

	req, err := env.settlements.RequestReopen(ctx, id, ReopenRequestInput{Reason: "wrong qty"}, env.actor)
	require.NoError(t, err)
	assert.Equal(t, model.ReopenRequested, req.Status)

	_, err = env.settlements.RequestReopen(ctx, id, ReopenRequestInput{Reason: "again"}, env.actor)
	require.Error(t, err)
	assert.Equal(t, apperror.CodeReopenRequested, apperror.CodeOf(err))
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))

	approver := uuid.New()
	reopened, err := env.settlements.ApproveReopen(ctx, req.ID.String(), ReopenDecisionInput{Note: "ok"}, approver)
	require.NoError(t, err)
	assert.Equal(t, model.SettlementReviewed, reopened.Status)
	assert.Nil(t, reopened.ClosedAt)
	assert.Nil(t, reopened.ClosedBy)

	_, err = env.settlements.ApproveReopen(ctx, req.ID.String(), ReopenDecisionInput{}, approver)
	assert.Equal(t, apperror.CodeInvalidStatus, apperror.CodeOf(err), "a decided request cannot be decided again")

	detail, err := env.settlements.GetBatch(ctx, id)
	require.NoError(t, err)
	actions := make([]string, 0, len(detail.Logs))
	for _, l := range detail.Logs {
		actions = append(actions, l.Action)
	}
	assert.Equal(t, []string{
		model.SettlementActionClose,
		model.SettlementActionReopenRequest,
		model.SettlementActionReopen,
	}, actions)
	require.Len(t, detail.Requests, 1)
	assert.Equal(t, string(model.ReopenApproved), detail.Requests[0].Status)
}

func TestSettlementRejectReopen(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, batch := seedSettlement(t, env)
	id := batch.ID.String()

	_, err := env.settlements.Close(ctx, id, env.actor)
	require.NoError(t, err)
	req, err := env.settlements.RequestReopen(ctx, id, ReopenRequestInput{Reason: "typo"}, env.actor)
	require.NoError(t, err)

	rejected, err := env.settlements.RejectReopen(ctx, req.ID.String(), ReopenDecisionInput{Note: "no"}, env.actor)
	require.NoError(t, err)
	assert.Equal(t, model.ReopenRejected, rejected.Status)

	detail, err := env.settlements.GetBatch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, string(model.SettlementClosed), detail.Status)

	// a fresh request is allowed once the previous one is decided
	_, err = env.settlements.RequestReopen(ctx, id, ReopenRequestInput{Reason: "second try"}, env.actor)
	assert.NoError(t, err)
}

func TestSettlementIssueInvoice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	client, batch := seedSettlement(t, env)

	inv, err := env.settlements.IssueInvoice(ctx, batch.ID.String(), env.actor)
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceDraft, inv.Status)
	assert.Equal(t, model.InvoiceOriginSettlement, inv.Origin)
	require.NotNil(t, inv.SettlementBatchID)
	assert.Equal(t, batch.ID, *inv.SettlementBatchID)

	// 120.5*40 = 4820 -> 4800 ; 1000.25 -> 1000
	assert.True(t, dec("5800").Equal(inv.Subtotal), "subtotal %s", inv.Subtotal)
	assert.True(t, dec("400").Equal(inv.VAT), "vat %s", inv.VAT)
	assert.True(t, dec("6200").Equal(inv.Total), "total %s", inv.Total)

	settlementLines := 0
	for _, it := range inv.Items {
		if it.ItemType == model.InvoiceItemSettlement {
			settlementLines++
			assert.NotNil(t, it.SettlementLineID)
		}
	}
	assert.Equal(t, 2, settlementLines)

	again, err := env.settlements.IssueInvoice(ctx, batch.ID.String(), env.actor)
	require.NoError(t, err)
	assert.Equal(t, inv.ID, again.ID)

	_, err = env.settlements.Generate(ctx, GenerateSettlementRequest{ClientID: client.String(), Month: "2026-02"}, env.actor)
	assert.Equal(t, apperror.CodeBatchInvoiced, apperror.CodeOf(err))

	issued, err := env.invoices.Issue(ctx, inv.ID.String(), env.actor)
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceIssued, issued.Status)
}

func TestSettlementIssueInvoice_SharesSequenceWithGeneratedInvoices(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	client, batch := seedSettlement(t, env)

	fromBatch, err := env.settlements.IssueInvoice(ctx, batch.ID.String(), env.actor)
	require.NoError(t, err)

	// only usage recorded after the batch is left for the monthly run
	late := env.manualEvent(t, client, "PICK", "2026-02-20", "1", "50", model.PricingTHBBased)
	generated, err := env.invoices.Generate(ctx, GenerateInvoiceRequest{ClientID: client.String(), Month: "2026-02"}, env.actor)
	require.NoError(t, err)

	assert.Contains(t, fromBatch.InvoiceNo, "-202602-0001")
	assert.Contains(t, generated.InvoiceNo, "-202602-0002")
	assert.True(t, dec("2000").Equal(generated.Subtotal), "subtotal %s", generated.Subtotal)
	assert.Equal(t, generated.ID, *env.reloadEvent(t, late.ID).InvoiceID)
}

func TestSettlementIssueInvoice_MarksSourceEventsInvoiced(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	client, batch := seedSettlement(t, env)

	inv, err := env.settlements.IssueInvoice(ctx, batch.ID.String(), env.actor)
	require.NoError(t, err)

	lines, err := env.settlementRepo.ListLines(ctx, batch.ID)
	require.NoError(t, err)
	for _, l := range lines {
		ev := env.reloadEvent(t, l.BillingEventID)
		assert.Equal(t, model.BillingEventInvoiced, ev.Status)
		require.NotNil(t, ev.InvoiceID)
		assert.Equal(t, inv.ID, *ev.InvoiceID)
	}

	_, err = env.invoices.Generate(ctx, GenerateInvoiceRequest{ClientID: client.String(), Month: "2026-02"}, env.actor)
	assert.Equal(t, apperror.CodeNoPendingEvents, apperror.CodeOf(err), "batch events are not billed twice")
}

func TestSettlementIssueInvoice_RejectsEventsAlreadyInvoiced(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	client, batch := seedSettlement(t, env)

	_, err := env.invoices.Generate(ctx, GenerateInvoiceRequest{ClientID: client.String(), Month: "2026-02"}, env.actor)
	require.NoError(t, err)

	_, err = env.settlements.IssueInvoice(ctx, batch.ID.String(), env.actor)
	assert.Equal(t, apperror.CodeEventAlreadyInvoiced, apperror.CodeOf(err))

	var invoices int64
	require.NoError(t, env.db.Model(&model.Invoice{}).Where("client_id = ?", client).Count(&invoices).Error)
	assert.EqualValues(t, 1, invoices, "the rejected issue leaves nothing behind")
}

func TestListSettlementBatches(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	client, _ := seedSettlement(t, env)

	batches, total, err := env.settlements.ListBatches(ctx, SettlementQuery{ClientID: client.String()})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "2026-02", batches[0].BillingMonth)

	_, total, err = env.settlements.ListBatches(ctx, SettlementQuery{Status: "closed"})
	require.NoError(t, err)
	assert.Zero(t, total)
}
