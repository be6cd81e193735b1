package service

import (
	"context"
	"testing"
	"time"

	"warehouse-billing/internal/database"
	"warehouse-billing/internal/model"
	"warehouse-billing/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// testEnv wires every service against one in-memory SQLite database.
type testEnv struct {
	db    *gorm.DB
	actor uuid.UUID

	stockRepo      repository.StockRepository
	eventRepo      repository.BillingEventRepository
	invoiceRepo    repository.InvoiceRepository
	rateRepo       repository.ExchangeRateRepository
	settlementRepo repository.SettlementRepository

	ledger      StockLedger
	prices      PriceService
	events      BillingEventService
	rates       ExchangeRateService
	taxes       TaxService
	invoices    InvoiceService
	settlements SettlementService
	movements   MovementService
	stats       StatisticsService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.OpenSQLite(":memory:", nil)
	require.NoError(t, err)
	return newTestEnvWithDB(t, db)
}

// newTestEnvWithDB migrates db and wires the services on it; db is closed on cleanup.
func newTestEnvWithDB(t *testing.T, db *gorm.DB) *testEnv {
	t.Helper()

	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	txManager := repository.NewTransactionManager(db)
	stockRepo := repository.NewStockRepository(db)
	eventRepo := repository.NewBillingEventRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)
	seqRepo := repository.NewSequenceRepository(db)
	rateRepo := repository.NewExchangeRateRepository(db)
	settlementRepo := repository.NewSettlementRepository(db)
	serviceRepo := repository.NewServiceRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	env := &testEnv{
		db:             db,
		actor:          uuid.New(),
		stockRepo:      stockRepo,
		eventRepo:      eventRepo,
		invoiceRepo:    invoiceRepo,
		rateRepo:       rateRepo,
		settlementRepo: settlementRepo,
	}
	obs := Observers{}
	settings := InvoiceSettings{}

	env.ledger = NewStockLedger(stockRepo, txManager)
	env.prices = NewPriceService(serviceRepo, repository.NewPricePolicyRepository(db), auditRepo, txManager)
	env.events = NewBillingEventService(eventRepo, invoiceRepo, serviceRepo, auditRepo, env.prices, txManager, obs)
	env.rates = NewExchangeRateService(rateRepo, auditRepo, txManager, obs)
	env.taxes = NewTaxService(repository.NewTaxRuleRepository(db), auditRepo, txManager, decimal.RequireFromString("0.07"))
	env.invoices = NewInvoiceService(invoiceRepo, eventRepo, seqRepo, rateRepo, auditRepo, env.taxes, txManager, settings, obs)
	env.settlements = NewSettlementService(settlementRepo, eventRepo, invoiceRepo, seqRepo, rateRepo, auditRepo, env.taxes, txManager, settings, obs)
	env.movements = NewMovementService(stockRepo, env.ledger, env.events, auditRepo, txManager, obs)
	env.stats = NewStatisticsService(repository.NewStatisticsRepository(db))
	return env
}

func (e *testEnv) createRate(t *testing.T, date, rate string) *model.ExchangeRate {
	t.Helper()
	r, err := e.rates.Create(context.Background(), CreateExchangeRateRequest{
		BaseCurrency:  model.CurrencyTHB,
		QuoteCurrency: model.CurrencyKRW,
		RateDate:      date,
		Rate:          rate,
	}, e.actor)
	require.NoError(t, err)
	return r
}

func (e *testEnv) createService(t *testing.T, code string, basis model.BillingBasis) {
	t.Helper()
	_, err := e.prices.CreateService(context.Background(), CreateServiceRequest{
		Code:         code,
		Name:         code,
		BillingBasis: string(basis),
	}, e.actor)
	require.NoError(t, err)
}

func (e *testEnv) createPrice(t *testing.T, clientID uuid.UUID, code string, policy model.PricingPolicy, unitPrice, from string) {
	t.Helper()
	_, err := e.prices.CreatePricePolicy(context.Background(), CreatePricePolicyRequest{
		ClientID:      clientID.String(),
		ServiceCode:   code,
		PricingPolicy: string(policy),
		UnitPrice:     unitPrice,
		EffectiveFrom: from,
	}, e.actor)
	require.NoError(t, err)
}

// manualEvent records a usage event with an explicit amount.
func (e *testEnv) manualEvent(t *testing.T, clientID uuid.UUID, code, date, qty, amount string, policy model.PricingPolicy) *model.BillingEvent {
	t.Helper()
	ev, err := e.events.RecordServiceUsage(context.Background(), RecordUsageRequest{
		ClientID:      clientID.String(),
		ServiceCode:   code,
		EventDate:     date,
		Qty:           qty,
		ManualAmount:  amount,
		PricingPolicy: string(policy),
	}, e.actor)
	require.NoError(t, err)
	return ev
}

func (e *testEnv) reloadEvent(t *testing.T, id uuid.UUID) model.BillingEvent {
	t.Helper()
	var ev model.BillingEvent
	require.NoError(t, e.db.First(&ev, "id = ?", id).Error)
	return ev
}

func mustDate(t *testing.T, raw string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", raw)
	require.NoError(t, err)
	return d
}

func dec(raw string) decimal.Decimal {
	return decimal.RequireFromString(raw)
}
