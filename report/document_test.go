package report

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lumenhq/lumen/internal/billing/invoices"
	"github.com/lumenhq/lumen/internal/billing/money"
	"github.com/lumenhq/lumen/internal/billing/quotes"
)

func TestFormatAmount(t *testing.T) {
	require.Equal(t, "EUR 14,520.00", FormatAmount(1452000, "EUR"))
	require.Equal(t, "USD 0.99", FormatAmount(99, "USD"))
	require.Equal(t, "EUR 0.00", FormatAmount(0, "EUR"))
}

func TestBuildQuoteHTML(t *testing.T) {
	q := &quotes.Quote{
		Number:   "QUO-2602-0017",
		Status:   quotes.StatusSent,
		Currency: "EUR",
		Lines: []money.Line{
			{Description: "Scale plan, 10 seats", Quantity: 10, UnitPrice: 1200, Total: 12000},
		},
		Subtotal:   12000,
		Tax:        2520,
		Total:      14520,
		ValidUntil: time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		CreatedAt:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	html, err := BuildQuoteHTML(q, "Acme GmbH")
	require.NoError(t, err)
	require.True(t, strings.Contains(html, "Quote QUO-2602-0017"))
	require.True(t, strings.Contains(html, "Acme GmbH"))
	require.True(t, strings.Contains(html, "EUR 145.20"))
	require.True(t, strings.Contains(html, "Valid until: March 31, 2026"))
}

func TestBuildInvoiceHTML(t *testing.T) {
	inv := &invoices.Invoice{
		Number:   "INV-2602-0042",
		Status:   invoices.StatusPending,
		Currency: "EUR",
		Lines: []money.Line{
			{Description: "Enterprise plan", Quantity: 1, UnitPrice: 990000, Total: 990000},
		},
		Subtotal: 990000,
		Tax:      0,
		Total:    990000,
		IssuedAt: time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
		DueAt:    time.Date(2026, 2, 24, 0, 0, 0, 0, time.UTC),
	}
	html, err := BuildInvoiceHTML(inv, "Acme GmbH")
	require.NoError(t, err)
	require.True(t, strings.Contains(html, "Invoice INV-2602-0042"))
	require.True(t, strings.Contains(html, "EUR 9,900.00"))
	require.True(t, strings.Contains(html, "Due: February 24, 2026"))
}
