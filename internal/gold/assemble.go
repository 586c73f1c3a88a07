package gold

import (
	"context"
	"time"

	"medallion/internal/observability"
	"medallion/internal/silver"
	"medallion/pkg/errors"
	"medallion/pkg/models"
)

// StagePrefix prefixes the stage name of every gold projection
const StagePrefix = "gold."

// BuildSalesFact attaches dimension surrogate keys to every silver sales
// line. Lines without a matching dimension row keep a nil key.
func BuildSalesFact(ctx context.Context, sales []silver.SalesLine, customers []CustomerDim, products []ProductDim, loadedAt time.Time) ([]SalesFact, error) {
	customerKeys := make(map[int64]int64, len(customers))
	for _, c := range customers {
		if _, ok := customerKeys[c.CustomerID]; !ok {
			customerKeys[c.CustomerID] = c.CustomerKey
		}
	}

	productKeys := make(map[string]int64, len(products))
	for _, p := range products {
		if _, ok := productKeys[p.ProductNumber]; !ok {
			productKeys[p.ProductNumber] = p.ProductKey
		}
	}

	out := make([]SalesFact, 0, len(sales))
	for i, s := range sales {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		fact := SalesFact{
			OrderNumber:  s.SlsOrdNum,
			OrderDate:    s.SlsOrderDt,
			ShippingDate: s.SlsShipDt,
			DueDate:      s.SlsDueDt,
			SalesAmount:  s.SlsSales,
			Quantity:     s.SlsQuantity,
			Price:        s.SlsPrice,
			LoadedAt:     loadedAt,
		}

		if key, ok := productKeys[s.SlsPrdKey]; ok {
			k := key
			fact.ProductKey = &k
		}
		if s.SlsCustID != nil {
			if key, ok := customerKeys[*s.SlsCustID]; ok {
				k := key
				fact.CustomerKey = &k
			}
		}

		out = append(out, fact)
	}

	return out, nil
}

// Assembler builds the gold model from a complete silver batch
type Assembler struct {
	StageTimeout time.Duration
	logger       *observability.Logger
}

// NewAssembler creates an assembler with a per-projection timeout
func NewAssembler(stageTimeout time.Duration) *Assembler {
	return &Assembler{
		StageTimeout: stageTimeout,
		logger:       observability.GetDefaultLogger(),
	}
}

// WithLogger overrides the assembler's logger
func (a *Assembler) WithLogger(logger *observability.Logger) *Assembler {
	a.logger = logger
	return a
}

// Assemble builds the customer and product dimensions, then the sales fact
func (a *Assembler) Assemble(ctx context.Context, in *silver.Batch, loadedAt time.Time) (*Model, []models.StageReport, error) {
	model := &Model{}
	var reports []models.StageReport

	stages := []struct {
		table  string
		rowsIn int
		run    func(ctx context.Context) (int, error)
	}{
		{TableCustomers, len(in.Customers), func(ctx context.Context) (n int, err error) {
			model.Customers, err = BuildCustomerDimension(ctx, in, loadedAt)
			return len(model.Customers), err
		}},
		{TableProducts, len(in.Products), func(ctx context.Context) (n int, err error) {
			model.Products, err = BuildProductDimension(ctx, in, loadedAt)
			return len(model.Products), err
		}},
		{TableSales, len(in.Sales), func(ctx context.Context) (n int, err error) {
			model.Sales, err = BuildSalesFact(ctx, in.Sales, model.Customers, model.Products, loadedAt)
			return len(model.Sales), err
		}},
	}

	for _, st := range stages {
		stage := StagePrefix + st.table
		logger := a.logger.WithContext(ctx).WithStage(stage)

		stageCtx, cancel := ctx, context.CancelFunc(func() {})
		if a.StageTimeout > 0 {
			stageCtx, cancel = context.WithTimeout(ctx, a.StageTimeout)
		}

		report := models.StageReport{Stage: stage, RowsIn: st.rowsIn, Started: time.Now()}
		rows, err := st.run(stageCtx)
		cancel()
		report.Duration = time.Since(report.Started)
		reports = append(reports, report)

		if err != nil {
			stageErr := errors.StageError(stage, report.Duration, err)
			logger.ErrorWithFields("stage failed", map[string]interface{}{
				"error":       err.Error(),
				"code":        string(stageErr.Code),
				"duration_ms": report.Duration.Milliseconds(),
			})
			return nil, reports, stageErr
		}

		report.RowsOut = rows
		report.Dropped = st.rowsIn - rows
		reports[len(reports)-1] = report

		logger.InfoWithFields("stage completed", map[string]interface{}{
			"rows_in":     report.RowsIn,
			"rows_out":    report.RowsOut,
			"duration_ms": report.Duration.Milliseconds(),
		})
	}

	return model, reports, nil
}
