package gold

import (
	"context"
	"sort"
	"time"

	"medallion/internal/silver"
)

// ProductOrder is the surrogate key order of the product dimension: start
// date with absent dates first, then product number, product id and source
// offset
func ProductOrder(a, b silver.Product) bool {
	switch {
	case a.PrdStartDt == nil && b.PrdStartDt != nil:
		return true
	case a.PrdStartDt != nil && b.PrdStartDt == nil:
		return false
	case a.PrdStartDt != nil && !a.PrdStartDt.Equal(*b.PrdStartDt):
		return a.PrdStartDt.Before(*b.PrdStartDt)
	}
	if a.PrdKey != b.PrdKey {
		return a.PrdKey < b.PrdKey
	}
	if a.PrdID != b.PrdID {
		return a.PrdID < b.PrdID
	}
	return a.SourceOffset < b.SourceOffset
}

// BuildProductDimension keeps current product versions and enriches them
// with their ERP category
func BuildProductDimension(ctx context.Context, in *silver.Batch, loadedAt time.Time) ([]ProductDim, error) {
	catByID := make(map[string]silver.ERPCategory, len(in.ERPCategories))
	for _, c := range in.ERPCategories {
		if prev, ok := catByID[c.CatID]; !ok || c.SourceOffset < prev.SourceOffset {
			catByID[c.CatID] = c
		}
	}

	current := make([]silver.Product, 0, len(in.Products))
	for _, p := range in.Products {
		if p.Current() {
			current = append(current, p)
		}
	}
	sort.SliceStable(current, func(i, j int) bool { return ProductOrder(current[i], current[j]) })

	out := make([]ProductDim, 0, len(current))
	for i, p := range current {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		dim := ProductDim{
			ProductKey:    int64(i + 1),
			ProductID:     p.PrdID,
			ProductNumber: p.PrdKey,
			ProductName:   p.PrdNm,
			CategoryID:    p.CatID,
			Cost:          p.PrdCost,
			ProductLine:   p.PrdLine,
			StartDate:     p.PrdStartDt,
			LoadedAt:      loadedAt,
		}
		if cat, ok := catByID[p.CatID]; ok {
			dim.Category = cat.Cat
			dim.Subcategory = cat.Subcat
			dim.Maintenance = cat.Maintenance
		}

		out = append(out, dim)
	}

	return out, nil
}
