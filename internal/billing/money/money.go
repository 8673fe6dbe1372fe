// Package money recomputes and validates monetary documents. All amounts are
// integer minor currency units; caller-supplied totals are never trusted.
package money

import (
	"github.com/lumenhq/lumen/internal/shared"
)

// roundingTolerance is the maximum deviation, in minor units, allowed between
// a claimed line total and the recomputed value.
const roundingTolerance = 1

// LineItemInput is a caller-supplied candidate line. Total is the claimed
// line total; nil means the caller did not supply one.
type LineItemInput struct {
	Description string
	Quantity    int64
	UnitPrice   int64
	Total       *int64
	PlanID      *int64
}

// Line is a canonical line whose total has been recomputed server-side.
type Line struct {
	Description string
	Quantity    int64
	UnitPrice   int64
	Total       int64
	PlanID      *int64
}

// Document is a canonical monetary document: line totals, subtotal and total
// are all derived from the lines themselves plus the tax amount.
type Document struct {
	Lines    []Line
	Subtotal int64
	Tax      int64
	Total    int64
}

// Canonicalize recomputes every line total as quantity times unit price and
// derives the aggregates. It fails if a claimed total drifts beyond the
// rounding tolerance, if any quantity or price is out of range, or if the
// line list is empty.
func Canonicalize(lines []LineItemInput, tax int64) (Document, error) {
	if len(lines) == 0 {
		return Document{}, shared.NewValidationError("lines", "at least one line item is required")
	}
	if tax < 0 {
		return Document{}, shared.NewValidationError("tax", "must not be negative")
	}

	doc := Document{Lines: make([]Line, 0, len(lines)), Tax: tax}
	for _, in := range lines {
		if in.Quantity <= 0 {
			return Document{}, shared.NewValidationError("quantity", "must be positive")
		}
		if in.UnitPrice < 0 {
			return Document{}, shared.NewValidationError("unit_price", "must not be negative")
		}
		computed := in.Quantity * in.UnitPrice
		if in.Total != nil && abs(*in.Total-computed) > roundingTolerance {
			return Document{}, shared.NewValidationError("total", "claimed line total does not match quantity times unit price")
		}
		doc.Lines = append(doc.Lines, Line{
			Description: in.Description,
			Quantity:    in.Quantity,
			UnitPrice:   in.UnitPrice,
			Total:       computed,
			PlanID:      in.PlanID,
		})
		doc.Subtotal += computed
	}
	doc.Total = doc.Subtotal + doc.Tax
	return doc, nil
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
