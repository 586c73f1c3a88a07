package silver

import (
	"context"
	"sort"
	"strings"
	"time"

	"medallion/internal/bronze"
)

// checkEvery is how many rows a conformer processes between context checks
const checkEvery = 1024

func checkpoint(ctx context.Context, i int) error {
	if i%checkEvery != 0 {
		return nil
	}
	return ctx.Err()
}

// CustomerOrder reports whether a should be kept over b when both carry the
// same customer id: latest creation date first, absent dates last, then the
// lowest source offset.
func CustomerOrder(a, b Customer) bool {
	switch {
	case a.CstCreateDate != nil && b.CstCreateDate == nil:
		return true
	case a.CstCreateDate == nil && b.CstCreateDate != nil:
		return false
	case a.CstCreateDate != nil && !a.CstCreateDate.Equal(*b.CstCreateDate):
		return a.CstCreateDate.After(*b.CstCreateDate)
	}
	return a.SourceOffset < b.SourceOffset
}

// ConformCustomers keeps one customer per numeric id and canonicalizes
// names, marital status and gender. Rows without a numeric id are dropped.
func ConformCustomers(ctx context.Context, rows []bronze.CRMCustomer, loadedAt time.Time) ([]Customer, Stats, error) {
	stats := Stats{In: len(rows)}
	type candidate struct {
		customer Customer
		trimmed  bool
	}
	latest := make(map[int64]candidate, len(rows))

	for i, row := range rows {
		if err := checkpoint(ctx, i); err != nil {
			return nil, stats, err
		}

		id, ok := bronze.ParseInt(row.CstID)
		if !ok {
			continue
		}

		c := Customer{
			CstID:            id,
			CstKey:           cleanIdentifier(row.CstKey),
			CstFirstname:     strings.TrimSpace(row.CstFirstname),
			CstLastname:      strings.TrimSpace(row.CstLastname),
			CstMaritalStatus: MaritalStatus(row.CstMaritalStatus),
			CstGndr:          Gender(row.CstGndr),
			CstCreateDate:    ParseDate(row.CstCreateDate),
			SourceOffset:     row.SourceOffset,
			LoadedAt:         loadedAt,
		}

		if current, seen := latest[id]; !seen || CustomerOrder(c, current.customer) {
			latest[id] = candidate{
				customer: c,
				trimmed:  c.CstKey != row.CstKey || c.CstFirstname != row.CstFirstname || c.CstLastname != row.CstLastname,
			}
		}
	}

	out := make([]Customer, 0, len(latest))
	for _, c := range latest {
		out = append(out, c.customer)
		if c.trimmed {
			stats.Repaired++
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CstID < out[j].CstID })

	stats.Out = len(out)
	stats.Dropped = stats.In - stats.Out
	return out, stats, nil
}
