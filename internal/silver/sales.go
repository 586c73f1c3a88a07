package silver

import (
	"context"
	"math"
	"time"

	"medallion/internal/bronze"
)

const amountTolerance = 1e-9

// RepairAmounts applies the amount repair and then the price repair.
//
// The amount is replaced by quantity * |price| when it is missing,
// non-positive or disagrees with that product; the product uses the source
// price. The price is then replaced by amount / quantity when it is missing
// or non-positive, using the repaired amount. A non-positive quantity or a
// non-positive repaired amount leaves the price absent.
func RepairAmounts(amount *float64, quantity *int64, price *float64) (newAmount *float64, newPrice *float64, repaired bool) {
	var expected *float64
	if quantity != nil && price != nil {
		v := float64(*quantity) * math.Abs(*price)
		expected = &v
	}

	newAmount = amount
	if amount == nil || *amount <= 0 || (expected != nil && math.Abs(*amount-*expected) > amountTolerance) {
		newAmount = expected
		repaired = true
	}

	newPrice = price
	if price == nil || *price <= 0 {
		newPrice = nil
		if newAmount != nil && *newAmount > 0 && quantity != nil && *quantity > 0 {
			v := *newAmount / float64(*quantity)
			newPrice = &v
		}
		repaired = true
	}

	return newAmount, newPrice, repaired
}

// ConformSalesLines parses integer dates and repairs amounts. Lines without
// an order number or with a non-numeric customer id are dropped.
func ConformSalesLines(ctx context.Context, rows []bronze.CRMSalesLine, loadedAt time.Time) ([]SalesLine, Stats, error) {
	stats := Stats{In: len(rows)}
	out := make([]SalesLine, 0, len(rows))

	for i, row := range rows {
		if err := checkpoint(ctx, i); err != nil {
			return nil, stats, err
		}

		orderNum := cleanIdentifier(row.SlsOrdNum)
		if orderNum == "" {
			continue
		}

		var custID *int64
		if !bronze.IsNull(row.SlsCustID) {
			id, ok := bronze.ParseInt(row.SlsCustID)
			if !ok {
				continue
			}
			custID = &id
		}

		line := SalesLine{
			SlsOrdNum:    orderNum,
			SlsPrdKey:    cleanIdentifier(row.SlsPrdKey),
			SlsCustID:    custID,
			SlsOrderDt:   ParseIntDate(row.SlsOrderDt),
			SlsShipDt:    ParseIntDate(row.SlsShipDt),
			SlsDueDt:     ParseIntDate(row.SlsDueDt),
			SlsQuantity:  optionalInt(row.SlsQuantity),
			SourceOffset: row.SourceOffset,
			LoadedAt:     loadedAt,
		}

		var repaired bool
		line.SlsSales, line.SlsPrice, repaired = RepairAmounts(optionalFloat(row.SlsSales), line.SlsQuantity, optionalFloat(row.SlsPrice))

		if repaired || datesDropped(row, line) {
			stats.Repaired++
		}
		out = append(out, line)
	}

	stats.Out = len(out)
	stats.Dropped = stats.In - stats.Out
	return out, stats, nil
}

func datesDropped(row bronze.CRMSalesLine, line SalesLine) bool {
	return (line.SlsOrderDt == nil && !bronze.IsNull(row.SlsOrderDt)) ||
		(line.SlsShipDt == nil && !bronze.IsNull(row.SlsShipDt)) ||
		(line.SlsDueDt == nil && !bronze.IsNull(row.SlsDueDt))
}

func optionalInt(raw string) *int64 {
	n, ok := bronze.ParseInt(raw)
	if !ok {
		return nil
	}
	return &n
}

func optionalFloat(raw string) *float64 {
	f, ok := bronze.ParseFloat(raw)
	if !ok {
		return nil
	}
	return &f
}
