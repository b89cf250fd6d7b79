package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/samber/lo"
	"github.com/smallbiznis/billbook/internal/clock"
	"github.com/smallbiznis/billbook/internal/config"
	inventorydomain "github.com/smallbiznis/billbook/internal/inventory/domain"
	inventoryservice "github.com/smallbiznis/billbook/internal/inventory/service"
	invoicedomain "github.com/smallbiznis/billbook/internal/invoice/domain"
	"github.com/smallbiznis/billbook/internal/invoice/numbering"
	"github.com/smallbiznis/billbook/internal/observability/logger"
	"github.com/smallbiznis/billbook/internal/observability/metrics"
	"github.com/smallbiznis/billbook/internal/observability/tracing"
	"github.com/smallbiznis/billbook/internal/orgcontext"
	productdomain "github.com/smallbiznis/billbook/internal/product/domain"
	taxdomain "github.com/smallbiznis/billbook/internal/tax/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Amounts are stored at the column scale; display rounding happens on read.
const storageScale = 6

var tracer = otel.Tracer("billbook/invoice")

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Billing   *config.BillingConfigHolder
	Repo      invoicedomain.Repository
	Products  productdomain.Repository
	Inventory inventorydomain.Service
	Tax       taxdomain.Calculator
	Numbering *numbering.Assigner
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID     *snowflake.Node
	clock     clock.Clock
	billing   *config.BillingConfigHolder
	repo      invoicedomain.Repository
	products  productdomain.Repository
	inventory inventorydomain.Service
	tax       taxdomain.Calculator
	numbering *numbering.Assigner
	metrics   *metrics.Metrics
}

func New(p Params) invoicedomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("invoice.service"),

		genID:     p.GenID,
		clock:     p.Clock,
		billing:   p.Billing,
		repo:      p.Repo,
		products:  p.Products,
		inventory: p.Inventory,
		tax:       p.Tax,
		numbering: p.Numbering,
		metrics:   p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req invoicedomain.CreateInvoiceRequest) (invoicedomain.InvoiceView, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return invoicedomain.InvoiceView{}, invoicedomain.ErrInvalidOrganization
	}

	billing := s.billing.Get()
	regime := taxdomain.Regime(billing.TaxRegime)

	ctx, span := tracer.Start(ctx, "invoice.create", trace.WithAttributes(tracing.SafeAttributes(
		attribute.String("org_id", orgID.String()),
		attribute.Int("item_count", len(req.Items)),
		attribute.String("tax_regime", string(regime)),
	)...))
	defer span.End()

	violations, err := fieldViolations(req)
	if err != nil {
		return invoicedomain.InvoiceView{}, s.fail(ctx, span, orgID.String(), "create", err)
	}
	customerID, ok := parseID(req.CustomerID)
	if !ok {
		violations = mergeViolations(violations, invalidID("customer_id"))
	}
	productIDs, idViolations := parseProductIDs(req.Items)
	violations = mergeViolations(violations, idViolations...)

	var formal *string
	if number := strings.TrimSpace(req.Number); number != "" {
		if numbering.IsDerived(number) {
			violations = mergeViolations(violations, invoicedomain.FieldViolation{
				Field:   "number",
				Code:    "reserved_format",
				Message: "has the shape of a generated invoice number",
			})
		}
		formal = &number
	}
	if len(violations) > 0 {
		return invoicedomain.InvoiceView{}, s.fail(ctx, span, orgID.String(), "create", &invoicedomain.ValidationError{Violations: violations})
	}

	var (
		created invoicedomain.Invoice
		records []invoicedomain.InvoiceItem
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.requireCustomer(ctx, tx, orgID, customerID); err != nil {
			return err
		}

		items, levels, err := s.buildLines(ctx, tx, orgID, req.Items, productIDs, nil, true)
		if err != nil {
			return err
		}
		requests := invoicedomain.StockRequests(items)

		report := inventoryservice.Validate(requests, inventoryservice.SnapshotOf(levels))
		if report.Blocked() {
			return stockViolation(report.Violations())
		}

		result, err := s.tax.Calculate(regime, labelsOf(billing), invoicedomain.TaxLines(items))
		if err != nil {
			return err
		}

		seq, createdAt, err := s.repo.NextSequence(ctx, tx, orgID, s.clock.Now())
		if err != nil {
			return err
		}

		dueDate := createdAt
		if req.DueDate != nil {
			dueDate = req.DueDate.UTC()
		}
		invoice := invoicedomain.Invoice{
			ID:           s.genID.Generate(),
			OrgID:        orgID,
			Sequence:     seq,
			FormalNumber: formal,
			CustomerID:   customerID,
			Status:       invoicedomain.InvoiceStatusDraft,
			TaxRegime:    string(regime),
			Subtotal:     result.Subtotal.Round(storageScale),
			TotalTax:     result.TotalTax.Round(storageScale),
			Total:        result.Total.Round(storageScale),
			DueDate:      dueDate,
			Notes:        strings.TrimSpace(req.Notes),
			CreatedBy:    strings.TrimSpace(req.CreatedBy),
			CreatedAt:    createdAt,
			UpdatedAt:    createdAt,
		}
		records = s.itemRecords(&invoice, items, result, createdAt)

		if err := s.repo.Insert(ctx, tx, &invoice, records); err != nil {
			return err
		}
		if err := s.inventory.Apply(ctx, tx, orgID, inventoryservice.ForCreate(requests)); err != nil {
			return err
		}

		created = invoice
		return nil
	})
	if err != nil {
		return invoicedomain.InvoiceView{}, s.fail(ctx, span, orgID.String(), "create", err)
	}

	s.numbering.Record(ctx, &created)
	s.metrics.RecordInvoiceMutation(ctx, orgID.String(), "create")
	logger.WithContext(ctx, s.log).Info("invoice created",
		zap.String("invoice_id", created.ID.String()),
		zap.Int64("sequence", created.Sequence),
		zap.Int("items", len(records)),
	)

	return s.view(ctx, s.db, &created, records, billing)
}

func (s *Service) Update(ctx context.Context, req invoicedomain.UpdateInvoiceRequest) (invoicedomain.InvoiceView, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return invoicedomain.InvoiceView{}, invoicedomain.ErrInvalidOrganization
	}
	invoiceID, ok := parseID(req.ID)
	if !ok {
		return invoicedomain.InvoiceView{}, invoicedomain.ErrInvalidInvoiceID
	}

	ctx, span := tracer.Start(ctx, "invoice.update", trace.WithAttributes(tracing.SafeAttributes(
		attribute.String("org_id", orgID.String()),
		attribute.String("invoice_id", invoiceID.String()),
		attribute.Int("item_count", len(req.Items)),
	)...))
	defer span.End()

	violations, err := fieldViolations(req)
	if err != nil {
		return invoicedomain.InvoiceView{}, s.fail(ctx, span, orgID.String(), "update", err)
	}
	var customerID snowflake.ID
	if req.CustomerID != nil {
		if customerID, ok = parseID(*req.CustomerID); !ok {
			violations = mergeViolations(violations, invalidID("customer_id"))
		}
	}
	if req.Items != nil && len(req.Items) == 0 {
		violations = mergeViolations(violations, invoicedomain.FieldViolation{
			Field:   "items",
			Code:    "min",
			Message: "must have at least 1 entries",
		})
	}
	productIDs, idViolations := parseProductIDs(req.Items)
	violations = mergeViolations(violations, idViolations...)
	if len(violations) > 0 {
		return invoicedomain.InvoiceView{}, s.fail(ctx, span, orgID.String(), "update", &invoicedomain.ValidationError{Violations: violations})
	}

	billing := s.billing.Get()

	var (
		updated invoicedomain.Invoice
		records []invoicedomain.InvoiceItem
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.repo.FindByID(ctx, tx, orgID, invoiceID, true)
		if err != nil {
			return err
		}
		if invoice == nil {
			return invoicedomain.ErrInvoiceNotFound
		}

		if req.CustomerID != nil {
			if err := s.requireCustomer(ctx, tx, orgID, customerID); err != nil {
				return err
			}
			invoice.CustomerID = customerID
		}

		current, err := s.repo.ListItems(ctx, tx, orgID, []snowflake.ID{invoiceID})
		if err != nil {
			return err
		}
		records = current[invoiceID]
		now := s.clock.Now()

		if req.Items != nil {
			held := invoicedomain.StockRequests(lineItemsOf(records))
			heldIDs := lo.Map(held, func(r inventorydomain.Request, _ int) snowflake.ID { return r.ProductID })

			items, levels, err := s.buildLines(ctx, tx, orgID, req.Items, productIDs, heldIDs, true)
			if err != nil {
				return err
			}
			requests := invoicedomain.StockRequests(items)

			// Stock this invoice already holds is available to its own edit.
			snapshot := inventoryservice.SnapshotOf(levels)
			for productID, qty := range inventoryservice.Demand(held) {
				if stock, ok := snapshot[productID]; ok {
					stock.Available += qty
					snapshot[productID] = stock
				}
			}
			report := inventoryservice.Validate(requests, snapshot)
			if report.Blocked() {
				return stockViolation(report.Violations())
			}

			result, err := s.tax.Calculate(taxdomain.Regime(invoice.TaxRegime), labelsOf(billing), invoicedomain.TaxLines(items))
			if err != nil {
				return err
			}
			invoice.Subtotal = result.Subtotal.Round(storageScale)
			invoice.TotalTax = result.TotalTax.Round(storageScale)
			invoice.Total = result.Total.Round(storageScale)

			if err := s.inventory.Apply(ctx, tx, orgID, inventoryservice.ForUpdate(held, requests)); err != nil {
				return err
			}
			records = s.itemRecords(invoice, items, result, now)
			if err := s.repo.ReplaceItems(ctx, tx, invoice, records); err != nil {
				return err
			}
		}

		if req.DueDate != nil {
			invoice.DueDate = req.DueDate.UTC()
		}
		if req.Notes != nil {
			invoice.Notes = strings.TrimSpace(*req.Notes)
		}
		if req.Status != nil {
			invoice.Status = *req.Status
		}
		invoice.UpdatedAt = now

		if err := s.repo.Update(ctx, tx, invoice); err != nil {
			return err
		}
		updated = *invoice
		return nil
	})
	if err != nil {
		return invoicedomain.InvoiceView{}, s.fail(ctx, span, orgID.String(), "update", err)
	}

	s.metrics.RecordInvoiceMutation(ctx, orgID.String(), "update")
	logger.WithContext(ctx, s.log).Info("invoice updated",
		zap.String("invoice_id", updated.ID.String()),
		zap.Bool("items_replaced", req.Items != nil),
	)

	return s.view(ctx, s.db, &updated, records, billing)
}

func (s *Service) UpdateStatus(ctx context.Context, req invoicedomain.UpdateStatusRequest) (invoicedomain.InvoiceView, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return invoicedomain.InvoiceView{}, invoicedomain.ErrInvalidOrganization
	}
	invoiceID, ok := parseID(req.ID)
	if !ok {
		return invoicedomain.InvoiceView{}, invoicedomain.ErrInvalidInvoiceID
	}

	ctx, span := tracer.Start(ctx, "invoice.update_status", trace.WithAttributes(tracing.SafeAttributes(
		attribute.String("org_id", orgID.String()),
		attribute.String("invoice_id", invoiceID.String()),
		attribute.String("status", string(req.Status)),
	)...))
	defer span.End()

	if err := validateRequest(req); err != nil {
		return invoicedomain.InvoiceView{}, s.fail(ctx, span, orgID.String(), "update_status", err)
	}

	var updated invoicedomain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.repo.FindByID(ctx, tx, orgID, invoiceID, true)
		if err != nil {
			return err
		}
		if invoice == nil {
			return invoicedomain.ErrInvoiceNotFound
		}

		invoice.Status = req.Status
		invoice.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, tx, invoice); err != nil {
			return err
		}
		updated = *invoice
		return nil
	})
	if err != nil {
		return invoicedomain.InvoiceView{}, s.fail(ctx, span, orgID.String(), "update_status", err)
	}

	s.metrics.RecordInvoiceMutation(ctx, orgID.String(), "update_status")
	logger.WithContext(ctx, s.log).Info("invoice status changed",
		zap.String("invoice_id", invoiceID.String()),
		zap.String("status", string(req.Status)),
	)

	items, err := s.repo.ListItems(ctx, s.db, orgID, []snowflake.ID{invoiceID})
	if err != nil {
		return invoicedomain.InvoiceView{}, s.fail(ctx, span, orgID.String(), "update_status", err)
	}
	return s.view(ctx, s.db, &updated, items[invoiceID], s.billing.Get())
}

func (s *Service) Delete(ctx context.Context, id string) error {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return invoicedomain.ErrInvalidOrganization
	}
	invoiceID, ok := parseID(id)
	if !ok {
		return invoicedomain.ErrInvalidInvoiceID
	}

	ctx, span := tracer.Start(ctx, "invoice.delete", trace.WithAttributes(tracing.SafeAttributes(
		attribute.String("org_id", orgID.String()),
		attribute.String("invoice_id", invoiceID.String()),
	)...))
	defer span.End()

	var restored int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.repo.FindByID(ctx, tx, orgID, invoiceID, true)
		if err != nil {
			return err
		}
		if invoice == nil {
			return invoicedomain.ErrInvoiceNotFound
		}

		items, err := s.repo.ListItems(ctx, tx, orgID, []snowflake.ID{invoiceID})
		if err != nil {
			return err
		}
		deltas := inventoryservice.ForDelete(invoicedomain.StockRequests(lineItemsOf(items[invoiceID])))
		if err := s.inventory.Apply(ctx, tx, orgID, deltas); err != nil {
			return err
		}

		deleted, err := s.repo.Delete(ctx, tx, orgID, invoiceID)
		if err != nil {
			return err
		}
		if !deleted {
			return invoicedomain.ErrInvoiceNotFound
		}
		restored = len(deltas)
		return nil
	})
	if err != nil {
		return s.fail(ctx, span, orgID.String(), "delete", err)
	}

	s.numbering.Forget(ctx, orgID, invoiceID)
	s.metrics.RecordInvoiceMutation(ctx, orgID.String(), "delete")
	logger.WithContext(ctx, s.log).Info("invoice deleted",
		zap.String("invoice_id", invoiceID.String()),
		zap.Int("products_restored", restored),
	)
	return nil
}

func (s *Service) requireCustomer(ctx context.Context, db *gorm.DB, orgID, customerID snowflake.ID) error {
	names, err := s.repo.CustomerNames(ctx, db, orgID, []snowflake.ID{customerID})
	if err != nil {
		return err
	}
	if _, ok := names[customerID]; !ok {
		return invoicedomain.ErrCustomerNotFound
	}
	return nil
}

// buildLines reads every referenced product (and any extra ids, so their
// rows are locked too) and turns inputs into validated line items.
func (s *Service) buildLines(ctx context.Context, db *gorm.DB, orgID snowflake.ID, inputs []invoicedomain.LineItemInput, productIDs, extra []snowflake.ID, lock bool) ([]invoicedomain.LineItem, map[snowflake.ID]productdomain.StockLevel, error) {
	ids := lo.Uniq(append(append([]snowflake.ID{}, productIDs...), extra...))
	levels, err := s.products.StockSnapshot(ctx, db, orgID, ids, lock)
	if err != nil {
		return nil, nil, err
	}

	var violations []invoicedomain.FieldViolation
	items := make([]invoicedomain.LineItem, 0, len(inputs))
	for i, input := range inputs {
		level, ok := levels[productIDs[i]]
		if !ok {
			return nil, nil, fmt.Errorf("%w: %s", invoicedomain.ErrProductNotFound, productIDs[i])
		}
		item, lineViolations := invoicedomain.NewLineItem(i, input, level)
		violations = append(violations, lineViolations...)
		items = append(items, item)
	}
	if len(violations) > 0 {
		return nil, nil, &invoicedomain.ValidationError{Violations: violations}
	}
	return items, levels, nil
}

func (s *Service) itemRecords(invoice *invoicedomain.Invoice, items []invoicedomain.LineItem, result taxdomain.Result, now time.Time) []invoicedomain.InvoiceItem {
	records := make([]invoicedomain.InvoiceItem, 0, len(items))
	for i, item := range items {
		records = append(records, invoicedomain.InvoiceItem{
			ID:          s.genID.Generate(),
			OrgID:       invoice.OrgID,
			InvoiceID:   invoice.ID,
			Position:    i,
			ProductID:   item.ProductID(),
			Description: item.Description(),
			HSNCode:     item.HSNCode(),
			Quantity:    item.Quantity(),
			UnitPrice:   item.UnitPrice(),
			TaxRate:     item.TaxRate(),
			Amount:      item.Amount().Round(storageScale),
			TaxAmount:   result.LineTaxes[i].Round(storageScale),
			CreatedAt:   now,
		})
	}
	return records
}

func lineItemsOf(records []invoicedomain.InvoiceItem) []invoicedomain.LineItem {
	return lo.Map(records, func(r invoicedomain.InvoiceItem, _ int) invoicedomain.LineItem {
		return invoicedomain.LineItemFromRecord(r)
	})
}

func labelsOf(cfg config.BillingConfig) taxdomain.Labels {
	labels := taxdomain.Labels{Single: cfg.SingleTaxLabel}
	copy(labels.Dual[:], cfg.DualTaxLabels)
	return labels
}
