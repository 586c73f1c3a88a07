package silver

import (
	"context"
	"strings"
	"time"

	"medallion/internal/bronze"
)

const erpCustomerPrefix = "NAS"

// ConformERPCustomers strips the NAS prefix, drops future birthdates and
// maps gender codes
func ConformERPCustomers(ctx context.Context, rows []bronze.ERPCustomer, asOf time.Time) ([]ERPCustomer, Stats, error) {
	stats := Stats{In: len(rows)}
	out := make([]ERPCustomer, 0, len(rows))

	for i, row := range rows {
		if err := checkpoint(ctx, i); err != nil {
			return nil, stats, err
		}

		cid := cleanIdentifier(row.CID)
		cid = strings.TrimPrefix(cid, erpCustomerPrefix)

		bdate := ParseDate(row.Bdate)
		if bdate != nil && bdate.After(asOf) {
			bdate = nil
			stats.Repaired++
		}

		out = append(out, ERPCustomer{
			CID:          cid,
			Bdate:        bdate,
			Gen:          ERPGender(row.Gen),
			SourceOffset: row.SourceOffset,
			LoadedAt:     asOf,
		})
	}

	stats.Out = len(out)
	return out, stats, nil
}

// ConformERPLocations removes dashes from ids and maps country codes
func ConformERPLocations(ctx context.Context, rows []bronze.ERPLocation, loadedAt time.Time) ([]ERPLocation, Stats, error) {
	stats := Stats{In: len(rows)}
	out := make([]ERPLocation, 0, len(rows))

	for i, row := range rows {
		if err := checkpoint(ctx, i); err != nil {
			return nil, stats, err
		}

		cid := strings.ReplaceAll(cleanIdentifier(row.CID), "-", "")
		if cid != row.CID {
			stats.Repaired++
		}

		out = append(out, ERPLocation{
			CID:          cid,
			Cntry:        Country(row.Cntry),
			SourceOffset: row.SourceOffset,
			LoadedAt:     loadedAt,
		})
	}

	stats.Out = len(out)
	return out, stats, nil
}

// ConformERPCategories normalizes category ids to the product key form
func ConformERPCategories(ctx context.Context, rows []bronze.ERPCategory, loadedAt time.Time) ([]ERPCategory, Stats, error) {
	stats := Stats{In: len(rows)}
	out := make([]ERPCategory, 0, len(rows))

	for i, row := range rows {
		if err := checkpoint(ctx, i); err != nil {
			return nil, stats, err
		}

		maintenance := strings.TrimSpace(row.Maintenance)
		if maintenance != row.Maintenance {
			stats.Repaired++
		}

		out = append(out, ERPCategory{
			CatID:        strings.ReplaceAll(cleanIdentifier(row.CatID), "_", "-"),
			Cat:          row.Cat,
			Subcat:       row.Subcat,
			Maintenance:  maintenance,
			SourceOffset: row.SourceOffset,
			LoadedAt:     loadedAt,
		})
	}

	stats.Out = len(out)
	return out, stats, nil
}
