// Package render turns an invoice view into a printable HTML tax invoice.
package render

import (
	"bytes"
	"html/template"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	invoicedomain "github.com/smallbiznis/billbook/internal/invoice/domain"
)

const invoiceHTMLTemplate = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>Tax Invoice {{.Invoice.Number}}</title>
  <style>
    * { box-sizing: border-box; }
    body {
      margin: 0;
      padding: 40px;
      font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif;
      color: #1a1f36;
      background: #f7f9fc;
    }
    .invoice-card {
      background: #ffffff;
      max-width: 760px;
      margin: 0 auto;
      padding: 48px;
      border-radius: 4px;
    }
    .header { display: flex; justify-content: space-between; margin-bottom: 32px; }
    .header h1 { margin: 0; font-size: 22px; }
    .status { text-transform: uppercase; font-size: 12px; color: #8792a2; font-weight: 600; }
    .label { font-size: 11px; text-transform: uppercase; color: #8792a2; margin-bottom: 4px; font-weight: 600; }
    .value { font-size: 14px; line-height: 1.5; }
    .meta-grid { display: flex; justify-content: space-between; margin-bottom: 32px; }
    table { width: 100%; border-collapse: collapse; margin-bottom: 24px; }
    th {
      text-align: left;
      text-transform: uppercase;
      font-size: 11px;
      color: #8792a2;
      border-bottom: 1px solid #e3e8ee;
      padding: 8px 0;
    }
    td { padding: 12px 0; border-bottom: 1px solid #e3e8ee; font-size: 14px; vertical-align: top; }
    .td-right { text-align: right; }
    .item-sub { font-size: 12px; color: #697386; }
    .totals { display: flex; flex-direction: column; align-items: flex-end; }
    .total-row { display: flex; justify-content: space-between; width: 280px; padding: 4px 0; font-size: 14px; }
    .total-final { border-top: 1px solid #e3e8ee; margin-top: 8px; padding-top: 8px; font-weight: 700; font-size: 16px; }
    .footer { margin-top: 40px; font-size: 12px; color: #8792a2; border-top: 1px solid #e3e8ee; padding-top: 16px; }
  </style>
</head>
<body>
  <div class="invoice-card">
    <div class="header">
      <div>
        <h1>Tax Invoice</h1>
        <div class="label" style="margin-top: 12px;">Invoice number</div>
        <div class="value">{{.Invoice.Number}}</div>
      </div>
      <div class="status">{{.Invoice.Status}}</div>
    </div>

    <div class="meta-grid">
      <div>
        <div class="label">Bill to</div>
        <div class="value"><strong>{{customerName .Invoice}}</strong></div>
      </div>
      <div>
        <div class="label">Date issued</div>
        <div class="value">{{formatDate .Invoice.CreatedAt .Location}}</div>
        <div class="label" style="margin-top: 12px;">Date due</div>
        <div class="value">{{formatDate .Invoice.DueDate .Location}}</div>
      </div>
    </div>

    <table>
      <thead>
        <tr>
          <th style="width: 40%;">Description</th>
          <th>HSN</th>
          <th class="td-right">Qty</th>
          <th class="td-right">Rate</th>
          <th class="td-right">Tax %</th>
          <th class="td-right">Amount</th>
        </tr>
      </thead>
      <tbody>
        {{range .Invoice.Items}}
        <tr>
          <td>{{.Description}}</td>
          <td class="item-sub">{{.HSNCode}}</td>
          <td class="td-right">{{.Quantity}}</td>
          <td class="td-right">{{money .UnitPrice $.Precision}}</td>
          <td class="td-right">{{.TaxRate.String}}</td>
          <td class="td-right">{{money .LineTotal $.Precision}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>

    <div class="totals">
      <div class="total-row"><span>Subtotal</span><span>{{money .Invoice.Subtotal .Precision}}</span></div>
      {{range .Invoice.TaxBreakdown}}
      <div class="total-row"><span>{{.Label}}{{if not .Rate.IsZero}} ({{.Rate.String}}%){{end}}</span><span>{{money .Amount $.Precision}}</span></div>
      {{end}}
      <div class="total-row total-final"><span>Total</span><span>{{money .Invoice.Total .Precision}}</span></div>
    </div>

    {{if .Invoice.Notes}}
    <div class="footer">{{.Invoice.Notes}}</div>
    {{end}}
  </div>
</body>
</html>
`

type Input struct {
	Invoice   invoicedomain.InvoiceView
	Precision int32
	Location  *time.Location
}

type HTMLRenderer struct {
	tpl *template.Template
}

func NewRenderer() *HTMLRenderer {
	funcs := template.FuncMap{
		"money":        money,
		"formatDate":   formatDate,
		"customerName": customerName,
	}
	return &HTMLRenderer{
		tpl: template.Must(template.New("invoice").Funcs(funcs).Parse(invoiceHTMLTemplate)),
	}
}

func (r *HTMLRenderer) RenderHTML(input Input) (string, error) {
	if input.Location == nil {
		input.Location = time.UTC
	}

	var buf bytes.Buffer
	if err := r.tpl.Execute(&buf, input); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func money(amount decimal.Decimal, precision int32) string {
	return amount.StringFixed(precision)
}

func formatDate(value time.Time, loc *time.Location) string {
	if value.IsZero() {
		return "-"
	}
	return value.In(loc).Format("02 Jan 2006")
}

func customerName(view invoicedomain.InvoiceView) string {
	if name := strings.TrimSpace(view.CustomerName); name != "" {
		return name
	}
	return view.CustomerID
}
