package report

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/lumenhq/lumen/internal/billing/invoices"
	"github.com/lumenhq/lumen/internal/billing/money"
	"github.com/lumenhq/lumen/internal/billing/quotes"
)

var amountPrinter = message.NewPrinter(language.English)

// FormatAmount renders an integer minor-unit amount as a grouped decimal with
// the currency code, e.g. 1452000 EUR becomes "EUR 14,520.00".
func FormatAmount(minor int64, currency string) string {
	return amountPrinter.Sprintf("%s %.2f", currency, float64(minor)/100)
}

// DocumentLine is one rendered line item.
type DocumentLine struct {
	Description string
	Quantity    int64
	UnitPrice   string
	Total       string
}

// DocumentData feeds the billing document template.
type DocumentData struct {
	Kind         string
	Number       string
	CustomerName string
	Status       string
	IssuedLabel  string
	IssuedAt     time.Time
	DeadlineLbl  string
	Deadline     time.Time
	Lines        []DocumentLine
	Subtotal     string
	Tax          string
	Total        string
}

var documentTemplate = template.Must(template.New("billing-document").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
body { font-family: Helvetica, Arial, sans-serif; color: #1a1a2e; margin: 48px; }
h1 { font-size: 22px; letter-spacing: 1px; }
.meta { color: #555; margin-bottom: 32px; }
table { width: 100%; border-collapse: collapse; }
th, td { text-align: left; padding: 8px 12px; border-bottom: 1px solid #ddd; }
th { background: #f4f4f8; text-transform: uppercase; font-size: 11px; }
td.amount, th.amount { text-align: right; }
.totals { margin-top: 24px; width: 40%; margin-left: auto; }
.totals td { border: none; padding: 4px 12px; }
.totals tr.grand td { font-weight: bold; border-top: 2px solid #1a1a2e; }
</style>
</head>
<body>
<h1>{{.Kind}} {{.Number}}</h1>
<div class="meta">
<p>{{.CustomerName}}</p>
<p>{{.IssuedLabel}}: {{.IssuedAt.Format "January 2, 2006"}}<br>
{{.DeadlineLbl}}: {{.Deadline.Format "January 2, 2006"}}</p>
<p>Status: {{.Status}}</p>
</div>
<table>
<tr><th>Description</th><th class="amount">Qty</th><th class="amount">Unit price</th><th class="amount">Total</th></tr>
{{range .Lines}}<tr><td>{{.Description}}</td><td class="amount">{{.Quantity}}</td><td class="amount">{{.UnitPrice}}</td><td class="amount">{{.Total}}</td></tr>
{{end}}</table>
<table class="totals">
<tr><td>Subtotal</td><td class="amount">{{.Subtotal}}</td></tr>
<tr><td>Tax</td><td class="amount">{{.Tax}}</td></tr>
<tr class="grand"><td>Total</td><td class="amount">{{.Total}}</td></tr>
</table>
</body>
</html>`))

func renderLines(lines []money.Line, currency string) []DocumentLine {
	out := make([]DocumentLine, 0, len(lines))
	for _, l := range lines {
		out = append(out, DocumentLine{
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   FormatAmount(l.UnitPrice, currency),
			Total:       FormatAmount(l.Total, currency),
		})
	}
	return out
}

// BuildQuoteHTML renders the printable document for a quote.
func BuildQuoteHTML(q *quotes.Quote, customerName string) (string, error) {
	data := DocumentData{
		Kind:         "Quote",
		Number:       q.Number,
		CustomerName: customerName,
		Status:       string(q.Status),
		IssuedLabel:  "Issued",
		IssuedAt:     q.CreatedAt,
		DeadlineLbl:  "Valid until",
		Deadline:     q.ValidUntil,
		Lines:        renderLines(q.Lines, q.Currency),
		Subtotal:     FormatAmount(q.Subtotal, q.Currency),
		Tax:          FormatAmount(q.Tax, q.Currency),
		Total:        FormatAmount(q.Total, q.Currency),
	}
	return execute(data)
}

// BuildInvoiceHTML renders the printable document for an invoice.
func BuildInvoiceHTML(inv *invoices.Invoice, customerName string) (string, error) {
	data := DocumentData{
		Kind:         "Invoice",
		Number:       inv.Number,
		CustomerName: customerName,
		Status:       string(inv.Status),
		IssuedLabel:  "Issued",
		IssuedAt:     inv.IssuedAt,
		DeadlineLbl:  "Due",
		Deadline:     inv.DueAt,
		Lines:        renderLines(inv.Lines, inv.Currency),
		Subtotal:     FormatAmount(inv.Subtotal, inv.Currency),
		Tax:          FormatAmount(inv.Tax, inv.Currency),
		Total:        FormatAmount(inv.Total, inv.Currency),
	}
	return execute(data)
}

func execute(data DocumentData) (string, error) {
	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render document template: %w", err)
	}
	return buf.String(), nil
}
