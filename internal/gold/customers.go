package gold

import (
	"context"
	"sort"
	"time"

	"medallion/internal/silver"
)

// ResolveGender prefers the CRM gender and falls back to the ERP one
func ResolveGender(crm, erp string) string {
	if crm != "" && crm != silver.NotAvailable {
		return crm
	}
	if erp != "" {
		return erp
	}
	return silver.NotAvailable
}

// BuildCustomerDimension enriches every silver customer with ERP birthdate,
// gender and country. Surrogate keys follow ascending customer id.
func BuildCustomerDimension(ctx context.Context, in *silver.Batch, loadedAt time.Time) ([]CustomerDim, error) {
	erpByID := make(map[string]silver.ERPCustomer, len(in.ERPCustomers))
	for _, c := range in.ERPCustomers {
		if prev, ok := erpByID[c.CID]; !ok || c.SourceOffset < prev.SourceOffset {
			erpByID[c.CID] = c
		}
	}

	locByID := make(map[string]silver.ERPLocation, len(in.ERPLocations))
	for _, l := range in.ERPLocations {
		if prev, ok := locByID[l.CID]; !ok || l.SourceOffset < prev.SourceOffset {
			locByID[l.CID] = l
		}
	}

	customers := make([]silver.Customer, len(in.Customers))
	copy(customers, in.Customers)
	sort.SliceStable(customers, func(i, j int) bool { return customers[i].CstID < customers[j].CstID })

	out := make([]CustomerDim, 0, len(customers))
	for i, c := range customers {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		dim := CustomerDim{
			CustomerKey:    int64(i + 1),
			CustomerID:     c.CstID,
			CustomerNumber: c.CstKey,
			FirstName:      c.CstFirstname,
			LastName:       c.CstLastname,
			Country:        silver.NotAvailable,
			MaritalStatus:  c.CstMaritalStatus,
			Gender:         ResolveGender(c.CstGndr, ""),
			CreateDate:     c.CstCreateDate,
			LoadedAt:       loadedAt,
		}

		if erp, ok := erpByID[c.CstKey]; ok {
			dim.Birthdate = erp.Bdate
			dim.Gender = ResolveGender(c.CstGndr, erp.Gen)
		}
		if loc, ok := locByID[c.CstKey]; ok {
			dim.Country = loc.Cntry
		}

		out = append(out, dim)
	}

	return out, nil
}
