package bronze

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"medallion/internal/config"
	"medallion/internal/observability"
	"medallion/pkg/errors"
	"medallion/pkg/models"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Column sets per entity, in source order
var (
	CRMCustomerColumns = []string{"cst_id", "cst_key", "cst_firstname", "cst_lastname", "cst_marital_status", "cst_gndr", "cst_create_date"}
	CRMProductColumns  = []string{"prd_id", "prd_key", "prd_nm", "prd_cost", "prd_line", "prd_start_dt", "prd_end_dt"}
	CRMSalesColumns    = []string{"sls_ord_num", "sls_prd_key", "sls_cust_id", "sls_order_dt", "sls_ship_dt", "sls_due_dt", "sls_sales", "sls_quantity", "sls_price"}
	ERPCustomerColumns = []string{"cid", "bdate", "gen"}
	ERPLocationColumns = []string{"cid", "cntry"}
	ERPCategoryColumns = []string{"id", "cat", "subcat", "maintenance"}
)

// Loader reads the six CSV sources into a bronze batch
type Loader struct {
	sources models.Sources
	logger  *observability.Logger
}

// NewLoader creates a loader for the configured sources
func NewLoader(sources models.Sources) *Loader {
	return &Loader{
		sources: sources,
		logger:  observability.GetDefaultLogger(),
	}
}

// WithLogger overrides the loader's logger
func (l *Loader) WithLogger(logger *observability.Logger) *Loader {
	l.logger = logger
	return l
}

// Load reads every source file. Any unreadable source fails the whole load.
func (l *Loader) Load(ctx context.Context) (*Batch, error) {
	batch := &Batch{}
	logger := l.logger.WithContext(ctx).WithStage("bronze.load")

	steps := []struct {
		entity string
		file   string
		read   func(io.Reader) (int, error)
	}{
		{EntityCRMCustomers, l.sources.CRMCustomers, func(r io.Reader) (n int, err error) {
			batch.CRMCustomers, err = ReadCRMCustomers(r)
			return len(batch.CRMCustomers), err
		}},
		{EntityCRMProducts, l.sources.CRMProducts, func(r io.Reader) (n int, err error) {
			batch.CRMProducts, err = ReadCRMProducts(r)
			return len(batch.CRMProducts), err
		}},
		{EntityCRMSales, l.sources.CRMSales, func(r io.Reader) (n int, err error) {
			batch.CRMSales, err = ReadCRMSales(r)
			return len(batch.CRMSales), err
		}},
		{EntityERPCustomers, l.sources.ERPCustomers, func(r io.Reader) (n int, err error) {
			batch.ERPCustomers, err = ReadERPCustomers(r)
			return len(batch.ERPCustomers), err
		}},
		{EntityERPLocations, l.sources.ERPLocations, func(r io.Reader) (n int, err error) {
			batch.ERPLocations, err = ReadERPLocations(r)
			return len(batch.ERPLocations), err
		}},
		{EntityERPCategories, l.sources.ERPCategories, func(r io.Reader) (n int, err error) {
			batch.ERPCategories, err = ReadERPCategories(r)
			return len(batch.ERPCategories), err
		}},
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		path := config.SourcePath(l.sources, step.file)
		start := time.Now()

		f, err := os.Open(path)
		if err != nil {
			code := errors.ErrCodeSourceUnreadable
			if os.IsNotExist(err) {
				code = errors.ErrCodeSourceNotFound
			}
			return nil, errors.Wrap(err, code, fmt.Sprintf("cannot open %s source", step.entity)).
				WithContext("entity", step.entity).
				WithContext("path", path).
				WithSuggestions("Check sources.dir and the per-entity file names in the config")
		}

		rows, err := step.read(f)
		f.Close()
		if err != nil {
			return nil, errors.Wrap(err, errors.GetErrorCode(err), fmt.Sprintf("cannot read %s source", step.entity)).
				WithContext("entity", step.entity).
				WithContext("path", path)
		}

		logger.InfoWithFields("source loaded", map[string]interface{}{
			"entity":      step.entity,
			"rows":        rows,
			"duration_ms": time.Since(start).Milliseconds(),
		})
	}

	return batch, nil
}

// ReadCRMCustomers parses the CRM customer source
func ReadCRMCustomers(r io.Reader) ([]CRMCustomer, error) {
	return readTable(r, CRMCustomerColumns, func(offset int, f []string) CRMCustomer {
		return CRMCustomer{
			SourceOffset:     offset,
			CstID:            f[0],
			CstKey:           f[1],
			CstFirstname:     f[2],
			CstLastname:      f[3],
			CstMaritalStatus: f[4],
			CstGndr:          f[5],
			CstCreateDate:    f[6],
		}
	})
}

// ReadCRMProducts parses the CRM product source
func ReadCRMProducts(r io.Reader) ([]CRMProduct, error) {
	return readTable(r, CRMProductColumns, func(offset int, f []string) CRMProduct {
		return CRMProduct{
			SourceOffset: offset,
			PrdID:        f[0],
			PrdKey:       f[1],
			PrdNm:        f[2],
			PrdCost:      f[3],
			PrdLine:      f[4],
			PrdStartDt:   f[5],
			PrdEndDt:     f[6],
		}
	})
}

// ReadCRMSales parses the CRM sales details source
func ReadCRMSales(r io.Reader) ([]CRMSalesLine, error) {
	return readTable(r, CRMSalesColumns, func(offset int, f []string) CRMSalesLine {
		return CRMSalesLine{
			SourceOffset: offset,
			SlsOrdNum:    f[0],
			SlsPrdKey:    f[1],
			SlsCustID:    f[2],
			SlsOrderDt:   f[3],
			SlsShipDt:    f[4],
			SlsDueDt:     f[5],
			SlsSales:     f[6],
			SlsQuantity:  f[7],
			SlsPrice:     f[8],
		}
	})
}

// ReadERPCustomers parses the ERP customer source
func ReadERPCustomers(r io.Reader) ([]ERPCustomer, error) {
	return readTable(r, ERPCustomerColumns, func(offset int, f []string) ERPCustomer {
		return ERPCustomer{SourceOffset: offset, CID: f[0], Bdate: f[1], Gen: f[2]}
	})
}

// ReadERPLocations parses the ERP location source
func ReadERPLocations(r io.Reader) ([]ERPLocation, error) {
	return readTable(r, ERPLocationColumns, func(offset int, f []string) ERPLocation {
		return ERPLocation{SourceOffset: offset, CID: f[0], Cntry: f[1]}
	})
}

// ReadERPCategories parses the ERP category source
func ReadERPCategories(r io.Reader) ([]ERPCategory, error) {
	return readTable(r, ERPCategoryColumns, func(offset int, f []string) ERPCategory {
		return ERPCategory{SourceOffset: offset, CatID: f[0], Cat: f[1], Subcat: f[2], Maintenance: f[3]}
	})
}

// readTable decodes a CSV stream whose header must contain every column.
// Fields are handed to build in the order of columns; offsets start at 1
// for the first data row.
func readTable[T any](r io.Reader, columns []string, build func(offset int, fields []string) T) ([]T, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))

	reader := csv.NewReader(decoded)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.New(errors.ErrCodeSourceHeader, "source is empty").
			WithContext("expected", strings.Join(columns, ","))
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSourceUnreadable, "failed to read header")
	}

	index, err := headerIndex(header, columns)
	if err != nil {
		return nil, err
	}

	var rows []T
	fields := make([]string, len(columns))
	for offset := 1; ; offset++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSourceUnreadable, "malformed CSV record").
				WithContext("offset", offset)
		}

		for i, pos := range index {
			if pos < len(record) {
				fields[i] = record[pos]
			} else {
				fields[i] = ""
			}
		}
		rows = append(rows, build(offset, fields))
	}

	return rows, nil
}

func headerIndex(header []string, columns []string) ([]int, error) {
	positions := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		if _, seen := positions[key]; !seen {
			positions[key] = i
		}
	}

	index := make([]int, len(columns))
	var missing []string
	for i, col := range columns {
		pos, ok := positions[col]
		if !ok {
			missing = append(missing, col)
			continue
		}
		index[i] = pos
	}

	if len(missing) > 0 {
		return nil, errors.New(errors.ErrCodeSourceHeader, "source header is missing required columns").
			WithContext("missing", strings.Join(missing, ",")).
			WithContext("header", strings.Join(header, ","))
	}
	return index, nil
}
