package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/samber/lo"
	"github.com/smallbiznis/billbook/internal/config"
	inventorydomain "github.com/smallbiznis/billbook/internal/inventory/domain"
	inventoryservice "github.com/smallbiznis/billbook/internal/inventory/service"
	invoicedomain "github.com/smallbiznis/billbook/internal/invoice/domain"
	"github.com/smallbiznis/billbook/internal/orgcontext"
	taxdomain "github.com/smallbiznis/billbook/internal/tax/domain"
	"github.com/smallbiznis/billbook/pkg/db/option"
	"github.com/smallbiznis/billbook/pkg/db/pagination"
	"gorm.io/gorm"
)

func (s *Service) GetByID(ctx context.Context, id string) (invoicedomain.InvoiceView, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return invoicedomain.InvoiceView{}, invoicedomain.ErrInvalidOrganization
	}
	invoiceID, ok := parseID(id)
	if !ok {
		return invoicedomain.InvoiceView{}, invoicedomain.ErrInvalidInvoiceID
	}

	invoice, err := s.repo.FindByID(ctx, s.db, orgID, invoiceID, false)
	if err != nil {
		return invoicedomain.InvoiceView{}, classify("get", err)
	}
	if invoice == nil {
		return invoicedomain.InvoiceView{}, invoicedomain.ErrInvoiceNotFound
	}

	items, err := s.repo.ListItems(ctx, s.db, orgID, []snowflake.ID{invoiceID})
	if err != nil {
		return invoicedomain.InvoiceView{}, classify("get", err)
	}
	return s.view(ctx, s.db, invoice, items[invoiceID], s.billing.Get())
}

func (s *Service) List(ctx context.Context, req invoicedomain.ListInvoiceRequest) (invoicedomain.ListInvoiceResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidOrganization
	}
	if err := validateRequest(req); err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}

	filter := invoicedomain.ListInvoiceFilter{
		Status:      invoicedomain.InvoiceStatus(strings.TrimSpace(req.Status)),
		CreatedFrom: req.CreatedFrom,
		CreatedTo:   req.CreatedTo,
	}
	if raw := strings.TrimSpace(req.CustomerID); raw != "" {
		customerID, ok := parseID(raw)
		if !ok {
			return invoicedomain.ListInvoiceResponse{}, &invoicedomain.ValidationError{
				Violations: []invoicedomain.FieldViolation{invalidID("customer_id")},
			}
		}
		filter.CustomerID = customerID.Int64()
	}

	rows, err := s.repo.List(ctx, s.db, orgID, filter, req.Pagination)
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidPageToken) {
			return invoicedomain.ListInvoiceResponse{}, &invoicedomain.ValidationError{
				Violations: []invoicedomain.FieldViolation{{Field: "page_token", Code: "invalid", Message: "is not a valid page token"}},
			}
		}
		return invoicedomain.ListInvoiceResponse{}, classify("list", err)
	}

	rows, pageInfo, err := pagination.BuildPageInfo(rows, req.Pagination.Size(), func(inv invoicedomain.Invoice) pagination.Cursor {
		return option.CursorOf(inv.ID.Int64(), inv.CreatedAt)
	})
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}

	ids := lo.Map(rows, func(inv invoicedomain.Invoice, _ int) snowflake.ID { return inv.ID })
	items, err := s.repo.ListItems(ctx, s.db, orgID, ids)
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, classify("list", err)
	}
	customerIDs := lo.Map(rows, func(inv invoicedomain.Invoice, _ int) snowflake.ID { return inv.CustomerID })
	names, err := s.repo.CustomerNames(ctx, s.db, orgID, customerIDs)
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, classify("list", err)
	}

	billing := s.billing.Get()
	views := make([]invoicedomain.InvoiceView, 0, len(rows))
	for i := range rows {
		view, err := s.render(ctx, &rows[i], items[rows[i].ID], names[rows[i].CustomerID], billing)
		if err != nil {
			return invoicedomain.ListInvoiceResponse{}, err
		}
		views = append(views, view)
	}

	return invoicedomain.ListInvoiceResponse{PageInfo: pageInfo, Invoices: views}, nil
}

// CheckStock is advisory: it reads current stock without locking and never
// writes. The commit path checks again.
func (s *Service) CheckStock(ctx context.Context, req invoicedomain.CheckStockRequest) (invoicedomain.CheckStockResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return invoicedomain.CheckStockResponse{}, invoicedomain.ErrInvalidOrganization
	}
	violations, err := fieldViolations(req)
	if err != nil {
		return invoicedomain.CheckStockResponse{}, err
	}

	requests := make([]inventorydomain.Request, 0, len(req.Items))
	for i, line := range req.Items {
		id, ok := parseID(line.ProductID)
		if !ok {
			violations = mergeViolations(violations, invalidID(lineField(i, "product_id")))
			continue
		}
		requests = append(requests, inventorydomain.Request{ProductID: id, Quantity: line.Quantity})
	}
	if len(violations) > 0 {
		return invoicedomain.CheckStockResponse{}, &invoicedomain.ValidationError{Violations: violations}
	}

	report, err := s.inventory.Check(ctx, orgID, requests)
	if err != nil {
		return invoicedomain.CheckStockResponse{}, classify("check_stock", err)
	}
	return invoicedomain.CheckStockResponse{Blocked: report.Blocked(), Lines: report.Lines}, nil
}

// Preview prices a candidate invoice and reports its stock position
// without persisting anything.
func (s *Service) Preview(ctx context.Context, req invoicedomain.PreviewRequest) (invoicedomain.PreviewResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return invoicedomain.PreviewResponse{}, invoicedomain.ErrInvalidOrganization
	}
	violations, err := fieldViolations(req)
	if err != nil {
		return invoicedomain.PreviewResponse{}, err
	}
	productIDs, idViolations := parseProductIDs(req.Items)
	violations = mergeViolations(violations, idViolations...)
	if len(violations) > 0 {
		return invoicedomain.PreviewResponse{}, &invoicedomain.ValidationError{Violations: violations}
	}

	items, levels, err := s.buildLines(ctx, s.db, orgID, req.Items, productIDs, nil, false)
	if err != nil {
		return invoicedomain.PreviewResponse{}, classify("preview", err)
	}
	report := inventoryservice.Validate(invoicedomain.StockRequests(items), inventoryservice.SnapshotOf(levels))

	billing := s.billing.Get()
	totals, lines, err := s.totals(taxdomain.Regime(billing.TaxRegime), billing, items)
	if err != nil {
		return invoicedomain.PreviewResponse{}, err
	}
	return invoicedomain.PreviewResponse{
		Items:  lines,
		Totals: totals,
		Stock:  invoicedomain.CheckStockResponse{Blocked: report.Blocked(), Lines: report.Lines},
	}, nil
}

// view renders one invoice, looking up its customer's name.
func (s *Service) view(ctx context.Context, db *gorm.DB, invoice *invoicedomain.Invoice, records []invoicedomain.InvoiceItem, billing config.BillingConfig) (invoicedomain.InvoiceView, error) {
	names, err := s.repo.CustomerNames(ctx, db, invoice.OrgID, []snowflake.ID{invoice.CustomerID})
	if err != nil {
		return invoicedomain.InvoiceView{}, classify("view", err)
	}
	return s.render(ctx, invoice, records, names[invoice.CustomerID], billing)
}

func (s *Service) render(ctx context.Context, invoice *invoicedomain.Invoice, records []invoicedomain.InvoiceItem, customerName string, billing config.BillingConfig) (invoicedomain.InvoiceView, error) {
	number, err := s.numbering.Number(ctx, invoice, billing.Location())
	if err != nil {
		return invoicedomain.InvoiceView{}, classify("number", err)
	}

	totals, lines, err := s.totals(taxdomain.Regime(invoice.TaxRegime), billing, lineItemsOf(records))
	if err != nil {
		return invoicedomain.InvoiceView{}, err
	}

	return invoicedomain.InvoiceView{
		ID:           invoice.ID.String(),
		Number:       number,
		CustomerID:   invoice.CustomerID.String(),
		CustomerName: customerName,
		Status:       invoice.Status,
		Items:        lines,
		Totals:       totals,
		DueDate:      invoice.DueDate,
		Notes:        invoice.Notes,
		CreatedBy:    invoice.CreatedBy,
		CreatedAt:    invoice.CreatedAt,
		UpdatedAt:    invoice.UpdatedAt,
	}, nil
}

// totals recomputes the money summary from the lines at full precision and
// rounds once, for display.
func (s *Service) totals(regime taxdomain.Regime, billing config.BillingConfig, items []invoicedomain.LineItem) (invoicedomain.Totals, []invoicedomain.LineItemView, error) {
	result, err := s.tax.Calculate(regime, labelsOf(billing), invoicedomain.TaxLines(items))
	if err != nil {
		return invoicedomain.Totals{}, nil, fmt.Errorf("compute totals: %w", err)
	}
	places := billing.DisplayPrecision
	rounded := s.tax.Round(result, places)

	lines := make([]invoicedomain.LineItemView, 0, len(items))
	for i, item := range items {
		lines = append(lines, invoicedomain.LineItemView{
			ProductID:   item.ProductID().String(),
			Description: item.Description(),
			HSNCode:     item.HSNCode(),
			Quantity:    item.Quantity(),
			UnitPrice:   item.UnitPrice(),
			TaxRate:     item.TaxRate(),
			LineTotal:   item.Amount().Round(places),
			TaxAmount:   rounded.LineTaxes[i],
		})
	}

	return invoicedomain.Totals{
		TaxRegime:     regime,
		Subtotal:      rounded.Subtotal,
		TaxBreakdown:  rounded.Breakdown.Components,
		TotalTax:      rounded.TotalTax,
		Total:         rounded.Total,
		EffectiveRate: rounded.EffectiveRate,
	}, lines, nil
}
