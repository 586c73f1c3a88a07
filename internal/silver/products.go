package silver

import (
	"context"
	"sort"
	"strings"
	"time"

	"medallion/internal/bronze"
)

const (
	categoryWidth = 5
	productOffset = 6
)

// SplitProductKey splits a compound CRM key into the normalized category
// id (first five characters, "_" as "-") and the product code (from the
// seventh character on).
func SplitProductKey(raw string) (catID, prdKey string) {
	key := []rune(cleanIdentifier(raw))

	cat := key
	if len(cat) > categoryWidth {
		cat = cat[:categoryWidth]
	}
	catID = strings.ReplaceAll(string(cat), "_", "-")

	if len(key) > productOffset {
		prdKey = string(key[productOffset:])
	}
	return catID, prdKey
}

// ConformProducts normalizes product versions and derives their end dates
func ConformProducts(ctx context.Context, rows []bronze.CRMProduct, loadedAt time.Time) ([]Product, Stats, error) {
	stats := Stats{In: len(rows)}
	out := make([]Product, 0, len(rows))

	for i, row := range rows {
		if err := checkpoint(ctx, i); err != nil {
			return nil, stats, err
		}

		id, ok := bronze.ParseInt(row.PrdID)
		if !ok {
			continue
		}

		cost, ok := bronze.ParseFloat(row.PrdCost)
		if !ok {
			cost = 0
			stats.Repaired++
		}

		catID, prdKey := SplitProductKey(row.PrdKey)
		out = append(out, Product{
			PrdID:        id,
			CatID:        catID,
			PrdKey:       prdKey,
			PrdNm:        row.PrdNm,
			PrdCost:      cost,
			PrdLine:      ProductLine(row.PrdLine),
			PrdStartDt:   ParseDate(row.PrdStartDt),
			SourceOffset: row.SourceOffset,
			LoadedAt:     loadedAt,
		})
	}

	if err := ctx.Err(); err != nil {
		return nil, stats, err
	}
	stitchIntervals(out)

	stats.Out = len(out)
	stats.Dropped = stats.In - stats.Out
	return out, stats, nil
}

// versionOrder sorts versions of the same product by start date with absent
// dates first, then by source offset
func versionOrder(a, b Product) bool {
	if a.PrdKey != b.PrdKey {
		return a.PrdKey < b.PrdKey
	}
	switch {
	case a.PrdStartDt == nil && b.PrdStartDt != nil:
		return true
	case a.PrdStartDt != nil && b.PrdStartDt == nil:
		return false
	case a.PrdStartDt != nil && !a.PrdStartDt.Equal(*b.PrdStartDt):
		return a.PrdStartDt.Before(*b.PrdStartDt)
	}
	return a.SourceOffset < b.SourceOffset
}

// stitchIntervals sorts products into version order and closes every
// version one day before its successor starts. The last version of each
// product key stays open-ended.
func stitchIntervals(products []Product) {
	sort.SliceStable(products, func(i, j int) bool { return versionOrder(products[i], products[j]) })

	for i := range products {
		products[i].PrdEndDt = nil
		if i+1 >= len(products) || products[i+1].PrdKey != products[i].PrdKey {
			continue
		}
		if next := products[i+1].PrdStartDt; next != nil {
			end := next.AddDate(0, 0, -1)
			products[i].PrdEndDt = &end
		}
	}
}
