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

type stockFixture struct {
	env *testEnv
	key model.StockKey
}

func newStockFixture(t *testing.T) *stockFixture {
	env := newTestEnv(t)
	key := model.StockKey{
		ClientID:    uuid.New(),
		ProductID:   uuid.New(),
		LotID:       uuid.New(),
		WarehouseID: uuid.New(),
		LocationID:  uuid.New(),
	}
	env.createService(t, "PICK", model.BillingBasisQty)
	env.createPrice(t, key.ClientID, "PICK", model.PricingTHBBased, "5", "2026-01-01")
	return &stockFixture{env: env, key: key}
}

func (f *stockFixture) request(txnType model.StockTxnType, ref string, qty int64, serviceCode string) PostMovementRequest {
	return PostMovementRequest{
		ClientID:      f.key.ClientID.String(),
		ProductID:     f.key.ProductID.String(),
		LotID:         f.key.LotID.String(),
		WarehouseID:   f.key.WarehouseID.String(),
		LocationID:    f.key.LocationID.String(),
		TxnType:       string(txnType),
		ReferenceType: model.RefTypeOutboundItem,
		ReferenceID:   ref,
		Qty:           qty,
		TxnDate:       "2026-02-10",
		ServiceCode:   serviceCode,
	}
}

func (f *stockFixture) post(t *testing.T, req PostMovementRequest) *model.StockTransaction {
	t.Helper()
	txn, err := f.env.movements.PostMovement(context.Background(), req, f.env.actor)
	require.NoError(t, err)
	return txn
}

func (f *stockFixture) available(t *testing.T) int64 {
	t.Helper()
	balance, err := f.env.movements.GetBalance(context.Background(), f.key)
	require.NoError(t, err)
	return balance.AvailableQty
}

func (f *stockFixture) activeEvent(t *testing.T, movementID uuid.UUID) *model.BillingEvent {
	t.Helper()
	ev, err := f.env.eventRepo.FindByReference(context.Background(), model.EventRefStockTransaction, movementID.String())
	require.NoError(t, err)
	if ev == nil || !ev.IsActive() {
		return nil
	}
	return ev
}

func TestPostMovement_AdjustsBalanceAndBillsUsage(t *testing.T) {
	f := newStockFixture(t)
	ctx := context.Background()

	inbound := f.request(model.StockTxnInbound, "in-1", 100, "")
	inbound.ReferenceType = model.RefTypeInboundItem
	f.post(t, inbound)
	assert.EqualValues(t, 100, f.available(t))

	out := f.post(t, f.request(model.StockTxnOutbound, "out-1", 30, "PICK"))
	assert.EqualValues(t, 70, f.available(t))
	assert.EqualValues(t, 30, out.QtyOut)

	ev := f.activeEvent(t, out.ID)
	require.NotNil(t, ev)
	assert.Equal(t, model.BillingEventPending, ev.Status)
	assert.Equal(t, model.PricingTHBBased, ev.PricingPolicy)
	assert.True(t, dec("150").Equal(ev.AmountTHB.Decimal), "amount %s", ev.AmountTHB.Decimal)

	check, err := f.env.movements.VerifyBalance(ctx, f.key)
	require.NoError(t, err)
	assert.Zero(t, check.Drift)
	assert.EqualValues(t, 70, check.LedgerQty)
}

func TestPostMovement_RepostAppliesOnlyTheDifference(t *testing.T) {
	f := newStockFixture(t)
	ctx := context.Background()

	f.post(t, f.request(model.StockTxnAdjustment, "adj-1", 100, ""))
	first := f.post(t, f.request(model.StockTxnOutbound, "out-1", 30, "PICK"))
	second := f.post(t, f.request(model.StockTxnOutbound, "out-1", 40, "PICK"))

	assert.Equal(t, first.ID, second.ID, "same line is updated in place")
	assert.EqualValues(t, 60, f.available(t))

	ev := f.activeEvent(t, second.ID)
	require.NotNil(t, ev)
	assert.True(t, dec("200").Equal(ev.AmountTHB.Decimal))

	var events int64
	require.NoError(t, f.env.db.Model(&model.BillingEvent{}).Where("state = ?", string(model.RowActive)).Count(&events).Error)
	assert.EqualValues(t, 1, events)

	// dropping the service code drops the billing event
	f.post(t, f.request(model.StockTxnOutbound, "out-1", 40, ""))
	assert.Nil(t, f.activeEvent(t, second.ID))

	check, err := f.env.movements.VerifyBalance(ctx, f.key)
	require.NoError(t, err)
	assert.Zero(t, check.Drift)
}

func TestPostMovement_RejectsInsufficientStock(t *testing.T) {
	f := newStockFixture(t)

	f.post(t, f.request(model.StockTxnAdjustment, "adj-1", 10, ""))

	_, err := f.env.movements.PostMovement(context.Background(), f.request(model.StockTxnOutbound, "out-1", 11, "PICK"), f.env.actor)
	require.Error(t, err)
	assert.Equal(t, apperror.CodeInsufficientStock, apperror.CodeOf(err))
	assert.EqualValues(t, 10, f.available(t), "nothing is written on failure")

	var txns int64
	require.NoError(t, f.env.db.Model(&model.StockTransaction{}).Count(&txns).Error)
	assert.EqualValues(t, 1, txns)
}

func TestPostMovement_UnknownServiceStillCommits(t *testing.T) {
	f := newStockFixture(t)
	ctx := context.Background()

	f.post(t, f.request(model.StockTxnAdjustment, "adj-1", 10, ""))
	out := f.post(t, f.request(model.StockTxnOutbound, "out-1", 4, "NOSUCH"))

	assert.EqualValues(t, 6, f.available(t))
	assert.Nil(t, f.activeEvent(t, out.ID))

	var events int64
	require.NoError(t, f.env.db.Model(&model.BillingEvent{}).Count(&events).Error)
	assert.Zero(t, events)

	// manual usage still reports the unknown code
	_, err := f.env.events.RecordServiceUsage(ctx, RecordUsageRequest{
		ClientID:      f.key.ClientID.String(),
		ServiceCode:   "NOSUCH",
		EventDate:     "2026-02-10",
		Qty:           "1",
		ManualAmount:  "10",
		PricingPolicy: string(model.PricingTHBBased),
	}, f.env.actor)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
}

func TestPostMovement_ReturnDisposeKeepsBalance(t *testing.T) {
	f := newStockFixture(t)

	f.post(t, f.request(model.StockTxnAdjustment, "adj-1", 10, ""))
	req := f.request(model.StockTxnReturnDispose, "ret-1", 4, "")
	req.ReferenceType = model.RefTypeReturnItem
	txn := f.post(t, req)

	assert.EqualValues(t, 4, txn.QtyIn)
	assert.EqualValues(t, 4, txn.QtyOut)
	assert.EqualValues(t, 10, f.available(t))
}

func TestPostMovement_ValidatesInput(t *testing.T) {
	f := newStockFixture(t)
	ctx := context.Background()

	_, err := f.env.movements.PostMovement(ctx, f.request(model.StockTxnOutbound, "out-1", 0, ""), f.env.actor)
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))

	_, err = f.env.movements.PostMovement(ctx, f.request("TELEPORT", "x-1", 1, ""), f.env.actor)
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))

	_, err = f.env.movements.PostMovement(ctx, f.request(model.StockTxnInbound, "in-1", 1, ""), uuid.Nil)
	assert.Equal(t, apperror.CodeActorRequired, apperror.CodeOf(err))
}

func TestReverseLine(t *testing.T) {
	f := newStockFixture(t)
	ctx := context.Background()

	f.post(t, f.request(model.StockTxnAdjustment, "adj-1", 50, ""))
	out := f.post(t, f.request(model.StockTxnOutbound, "out-1", 20, "PICK"))
	require.NotNil(t, f.activeEvent(t, out.ID))

	err := f.env.movements.ReverseLine(ctx, ReverseMovementRequest{
		TxnType:       string(model.StockTxnOutbound),
		ReferenceType: model.RefTypeOutboundItem,
		ReferenceID:   "out-1",
	}, f.env.actor)
	require.NoError(t, err)

	assert.EqualValues(t, 50, f.available(t))
	assert.Nil(t, f.activeEvent(t, out.ID))

	list, total, err := f.env.movements.ListMovements(ctx, MovementQuery{ClientID: f.key.ClientID.String()})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total, "the reversed line leaves the active ledger")
	assert.Len(t, list, 1)

	_, total, err = f.env.movements.ListMovements(ctx, MovementQuery{ClientID: f.key.ClientID.String(), IncludeAll: true})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)

	err = f.env.movements.ReverseLine(ctx, ReverseMovementRequest{
		TxnType:       string(model.StockTxnOutbound),
		ReferenceType: model.RefTypeOutboundItem,
		ReferenceID:   "out-1",
	}, f.env.actor)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))

	check, err := f.env.movements.VerifyBalance(ctx, f.key)
	require.NoError(t, err)
	assert.Zero(t, check.Drift)
}

func TestReverseLine_BlockedOnceInvoiced(t *testing.T) {
	f := newStockFixture(t)
	ctx := context.Background()

	f.post(t, f.request(model.StockTxnAdjustment, "adj-1", 50, ""))
	f.post(t, f.request(model.StockTxnOutbound, "out-1", 20, "PICK"))
	f.env.createRate(t, "2026-02-01", "40")

	_, err := f.env.invoices.Generate(ctx, GenerateInvoiceRequest{ClientID: f.key.ClientID.String(), Month: "2026-02"}, f.env.actor)
	require.NoError(t, err)

	err = f.env.movements.ReverseLine(ctx, ReverseMovementRequest{
		TxnType:       string(model.StockTxnOutbound),
		ReferenceType: model.RefTypeOutboundItem,
		ReferenceID:   "out-1",
	}, f.env.actor)
	require.Error(t, err)
	assert.Equal(t, apperror.CodeEventAlreadyInvoiced, apperror.CodeOf(err))
	assert.EqualValues(t, 30, f.available(t), "the balance change is rolled back")
}

func TestStockLedger_AdjustBalanceCreatesRow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	key := model.StockKey{
		ClientID:    uuid.New(),
		ProductID:   uuid.New(),
		LotID:       uuid.New(),
		WarehouseID: uuid.New(),
		LocationID:  uuid.New(),
	}

	balance, err := env.ledger.AdjustBalance(ctx, key, 7)
	require.NoError(t, err)
	assert.EqualValues(t, 7, balance.AvailableQty)

	balance, err = env.ledger.AdjustBalance(ctx, key, -3)
	require.NoError(t, err)
	assert.EqualValues(t, 4, balance.AvailableQty)

	_, err = env.ledger.AdjustBalance(ctx, model.StockKey{ClientID: key.ClientID}, 1)
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))

	err = env.ledger.ReverseMovement(ctx, model.StockTxnInbound, model.RefTypeInboundItem, "missing")
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
}
