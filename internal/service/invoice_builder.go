package service

import (
	"context"
	"fmt"
	"time"

	"warehouse-billing/internal/model"
	"warehouse-billing/internal/repository"
	"warehouse-billing/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceSettings carries the currency configuration of invoice numbering
// and conversion.
type InvoiceSettings struct {
	Currency string
	FxBase   string
	FxQuote  string
}

func (s InvoiceSettings) withDefaults() InvoiceSettings {
	if s.Currency == "" {
		s.Currency = model.CurrencyKRW
	}
	if s.FxBase == "" {
		s.FxBase = model.CurrencyTHB
	}
	if s.FxQuote == "" {
		s.FxQuote = model.CurrencyKRW
	}
	return s
}

// invoiceBuilder holds the steps shared by every path that creates an
// invoice. Callers invoke them inside one transaction in the order
// lockRate, nextNumber, insert, finalize.
type invoiceBuilder struct {
	invoiceRepo repository.InvoiceRepository
	seqRepo     repository.SequenceRepository
	rateRepo    repository.ExchangeRateRepository
	taxes       TaxService
	settings    InvoiceSettings
}

// lockRate selects the rate in force on date under a row lock and freezes it.
func (b *invoiceBuilder) lockRate(ctx context.Context, date time.Time) (*model.ExchangeRate, error) {
	rate, err := b.rateRepo.FindOnOrBeforeForUpdate(ctx, b.settings.FxBase, b.settings.FxQuote, dateOnly(date))
	if err != nil {
		return nil, apperror.FromStorage("exchange rate", err)
	}
	if rate == nil {
		return nil, apperror.Precondition(apperror.CodeFXNotFound,
			fmt.Sprintf("no active %s/%s rate on or before %s", b.settings.FxBase, b.settings.FxQuote, date.Format("2006-01-02")))
	}
	if err := lockRateRow(ctx, b.rateRepo, rate); err != nil {
		return nil, err
	}
	return rate, nil
}

// lockRateByID locks a specific rate, used when the rate was chosen earlier.
func (b *invoiceBuilder) lockRateByID(ctx context.Context, id uuid.UUID) (*model.ExchangeRate, error) {
	rate, err := b.rateRepo.FindByIDForUpdate(ctx, id)
	if err != nil {
		err = apperror.FromStorage("exchange rate", err)
		if apperror.KindOf(err) == apperror.KindNotFound {
			return nil, apperror.Precondition(apperror.CodeFXNotFound, "exchange rate no longer available")
		}
		return nil, err
	}
	if err := lockRateRow(ctx, b.rateRepo, rate); err != nil {
		return nil, err
	}
	return rate, nil
}

// nextNumber allocates {CURRENCY}-{client}-{yyyymm}-{seq4}.
func (b *invoiceBuilder) nextNumber(ctx context.Context, clientID uuid.UUID, month BillingMonth) (string, error) {
	seq, err := b.seqRepo.Next(ctx, clientID, month.Period())
	if err != nil {
		return "", apperror.FromStorage("invoice sequence", err)
	}
	return fmt.Sprintf("%s-%s-%s-%04d", b.settings.Currency, clientID, month.Period(), seq), nil
}

func (b *invoiceBuilder) newDraft(number string, clientID uuid.UUID, month BillingMonth, invoiceDate time.Time, origin model.InvoiceOrigin, rate *model.ExchangeRate, actorID uuid.UUID) *model.Invoice {
	inv := &model.Invoice{
		InvoiceNo:    number,
		ClientID:     clientID,
		BillingMonth: month.String(),
		Origin:       origin,
		Currency:     b.settings.Currency,
		Status:       model.InvoiceDraft,
		InvoiceDate:  dateOnly(invoiceDate),
		Subtotal:     decimal.Zero,
		VAT:          decimal.Zero,
		Total:        decimal.Zero,
		CreatedBy:    actorID,
		Lifecycle:    model.ActiveLifecycle(),
	}
	if rate != nil {
		inv.ExchangeRateID = &rate.ID
		inv.FxBase = rate.BaseCurrency
		inv.FxQuote = rate.QuoteCurrency
		inv.FxRate = decimal.NewNullDecimal(rate.Rate)
	}
	return inv
}

func (b *invoiceBuilder) insert(ctx context.Context, inv *model.Invoice) error {
	vatRate, err := b.taxes.VATRate(ctx, inv.InvoiceDate)
	if err != nil {
		return err
	}
	inv.VATRate = vatRate
	if err := b.invoiceRepo.Create(ctx, inv); err != nil {
		return apperror.FromStorage("invoice", err)
	}
	return nil
}

// finalize stores the lines plus the VAT line and writes the totals.
func (b *invoiceBuilder) finalize(ctx context.Context, inv *model.Invoice, lines []model.InvoiceItem) error {
	amounts := make([]decimal.Decimal, 0, len(lines))
	for i := range lines {
		lines[i].InvoiceID = inv.ID
		lines[i].Lifecycle = model.ActiveLifecycle()
		amounts = append(amounts, lines[i].Amount)
	}

	totals := computeTotals(amounts, inv.VATRate)
	lines = append(lines, model.InvoiceItem{
		InvoiceID:   inv.ID,
		ItemType:    model.InvoiceItemVAT,
		ServiceCode: model.VATServiceCode,
		Description: "VAT " + inv.VATRate.Mul(decimal.NewFromInt(100)).String() + "%",
		Qty:         decimal.NewFromInt(1),
		UnitPrice:   totals.VAT,
		Amount:      totals.VAT,
		Lifecycle:   model.ActiveLifecycle(),
	})
	if err := b.invoiceRepo.CreateItems(ctx, lines); err != nil {
		return apperror.FromStorage("invoice item", err)
	}

	inv.Subtotal = totals.Subtotal
	inv.VAT = totals.VAT
	inv.Total = totals.Total
	if err := b.invoiceRepo.Save(ctx, inv); err != nil {
		return apperror.FromStorage("invoice", err)
	}
	inv.Items = lines
	return nil
}
