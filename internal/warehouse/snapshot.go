package warehouse

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"medallion/internal/bronze"
	"medallion/internal/gold"
	"medallion/internal/silver"

	"github.com/cespare/xxhash/v2"
)

// Snapshot is the complete, immutable output of one pipeline run
type Snapshot struct {
	ID             string        `json:"id"`
	RunID          string        `json:"run_id"`
	AsOf           time.Time     `json:"as_of"`
	CreatedAt      time.Time     `json:"created_at"`
	Checksum       string        `json:"checksum"`
	SourceRevision string        `json:"source_revision,omitempty"`
	Bronze         *bronze.Batch `json:"bronze,omitempty"`
	Silver         *silver.Batch `json:"silver"`
	Gold           *gold.Model   `json:"gold"`
}

// SnapshotInfo describes a published snapshot without its rows
type SnapshotInfo struct {
	ID             string    `json:"id"`
	RunID          string    `json:"run_id"`
	AsOf           time.Time `json:"as_of"`
	CreatedAt      time.Time `json:"created_at"`
	Checksum       string    `json:"checksum"`
	SourceRevision string    `json:"source_revision,omitempty"`
	Rows           int       `json:"rows"`
	Current        bool      `json:"current"`
}

// Info returns the snapshot metadata
func (s *Snapshot) Info() SnapshotInfo {
	return SnapshotInfo{
		ID:             s.ID,
		RunID:          s.RunID,
		AsOf:           s.AsOf,
		CreatedAt:      s.CreatedAt,
		Checksum:       s.Checksum,
		SourceRevision: s.SourceRevision,
		Rows:           s.Rows(),
	}
}

// Counts returns the row count of every silver and gold table
func (s *Snapshot) Counts() map[string]int {
	counts := make(map[string]int, 9)
	if s.Silver != nil {
		counts["silver."+bronze.EntityCRMCustomers] = len(s.Silver.Customers)
		counts["silver."+bronze.EntityCRMProducts] = len(s.Silver.Products)
		counts["silver."+bronze.EntityCRMSales] = len(s.Silver.Sales)
		counts["silver."+bronze.EntityERPCustomers] = len(s.Silver.ERPCustomers)
		counts["silver."+bronze.EntityERPLocations] = len(s.Silver.ERPLocations)
		counts["silver."+bronze.EntityERPCategories] = len(s.Silver.ERPCategories)
	}
	if s.Gold != nil {
		counts["gold."+gold.TableCustomers] = len(s.Gold.Customers)
		counts["gold."+gold.TableProducts] = len(s.Gold.Products)
		counts["gold."+gold.TableSales] = len(s.Gold.Sales)
	}
	return counts
}

// Rows is the total number of silver and gold rows
func (s *Snapshot) Rows() int {
	total := 0
	for _, n := range s.Counts() {
		total += n
	}
	return total
}

// Store publishes snapshots and tracks which one is current. Publish must
// make the new snapshot visible atomically or not at all.
type Store interface {
	Publish(ctx context.Context, snapshot *Snapshot) error
	Current(ctx context.Context) (*SnapshotInfo, error)
	List(ctx context.Context) ([]SnapshotInfo, error)
	Activate(ctx context.Context, id string) error
	Prune(ctx context.Context, keep int) (int, error)
	Close() error
}

// Reader is implemented by stores that can return a snapshot's rows
type Reader interface {
	Load(ctx context.Context, id string) (*Snapshot, error)
}

// Checksum fingerprints the silver and gold content of a run. Load
// timestamps are excluded so reruns over the same sources match.
func Checksum(s *silver.Batch, g *gold.Model) (string, error) {
	h := xxhash.New()
	enc := json.NewEncoder(h)

	if err := enc.Encode(withoutLoadTimeSilver(s)); err != nil {
		return "", fmt.Errorf("failed to encode silver batch: %w", err)
	}
	if err := enc.Encode(withoutLoadTimeGold(g)); err != nil {
		return "", fmt.Errorf("failed to encode gold model: %w", err)
	}

	return fmt.Sprintf("%016x", h.Sum64()), nil
}

func withoutLoadTimeSilver(in *silver.Batch) *silver.Batch {
	if in == nil {
		return nil
	}
	out := &silver.Batch{
		Customers:     make([]silver.Customer, len(in.Customers)),
		Products:      make([]silver.Product, len(in.Products)),
		Sales:         make([]silver.SalesLine, len(in.Sales)),
		ERPCustomers:  make([]silver.ERPCustomer, len(in.ERPCustomers)),
		ERPLocations:  make([]silver.ERPLocation, len(in.ERPLocations)),
		ERPCategories: make([]silver.ERPCategory, len(in.ERPCategories)),
	}
	for i, r := range in.Customers {
		r.LoadedAt = time.Time{}
		out.Customers[i] = r
	}
	for i, r := range in.Products {
		r.LoadedAt = time.Time{}
		out.Products[i] = r
	}
	for i, r := range in.Sales {
		r.LoadedAt = time.Time{}
		out.Sales[i] = r
	}
	for i, r := range in.ERPCustomers {
		r.LoadedAt = time.Time{}
		out.ERPCustomers[i] = r
	}
	for i, r := range in.ERPLocations {
		r.LoadedAt = time.Time{}
		out.ERPLocations[i] = r
	}
	for i, r := range in.ERPCategories {
		r.LoadedAt = time.Time{}
		out.ERPCategories[i] = r
	}
	return out
}

func withoutLoadTimeGold(in *gold.Model) *gold.Model {
	if in == nil {
		return nil
	}
	out := &gold.Model{
		Customers: make([]gold.CustomerDim, len(in.Customers)),
		Products:  make([]gold.ProductDim, len(in.Products)),
		Sales:     make([]gold.SalesFact, len(in.Sales)),
	}
	for i, r := range in.Customers {
		r.LoadedAt = time.Time{}
		out.Customers[i] = r
	}
	for i, r := range in.Products {
		r.LoadedAt = time.Time{}
		out.Products[i] = r
	}
	for i, r := range in.Sales {
		r.LoadedAt = time.Time{}
		out.Sales[i] = r
	}
	return out
}
