package gold

import (
	"context"
	"strings"
	"testing"
	"time"

	"medallion/internal/bronze"
	"medallion/internal/silver"
	"medallion/internal/testutil"
	"medallion/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func fixtureSilver(t *testing.T) *silver.Batch {
	t.Helper()
	h := testutil.NewTestHelper(t)
	sources := h.WriteSources(t.TempDir())

	in, err := bronze.NewLoader(sources).WithLogger(testutil.QuietLogger(nil)).Load(context.Background())
	require.NoError(t, err)

	out, _, err := silver.NewEngine(false, 0).WithLogger(testutil.QuietLogger(nil)).Conform(context.Background(), in, testutil.AsOf)
	require.NoError(t, err)
	return out
}

func TestResolveGender(t *testing.T) {
	assert.Equal(t, "Male", ResolveGender("Male", "Female"))
	assert.Equal(t, "Female", ResolveGender(silver.NotAvailable, "Female"))
	assert.Equal(t, silver.NotAvailable, ResolveGender(silver.NotAvailable, silver.NotAvailable))
	assert.Equal(t, silver.NotAvailable, ResolveGender("", ""))
}

func TestBuildCustomerDimension(t *testing.T) {
	in := fixtureSilver(t)

	dims, err := BuildCustomerDimension(context.Background(), in, testutil.AsOf)
	require.NoError(t, err)
	require.Len(t, dims, 4)

	for i, d := range dims {
		assert.Equal(t, int64(i+1), d.CustomerKey)
	}

	jon := dims[0]
	assert.Equal(t, int64(11000), jon.CustomerID)
	assert.Equal(t, "AW00011000", jon.CustomerNumber)
	assert.Equal(t, "Australia", jon.Country)
	assert.Equal(t, date(1971, 10, 6), jon.Birthdate, "first ERP row wins")

	eugene := dims[1]
	assert.Equal(t, "Male", eugene.Gender, "CRM gender preferred")
	assert.Equal(t, "United States", eugene.Country)

	ruben := dims[2]
	assert.Equal(t, "Female", ruben.Gender)
	assert.Nil(t, ruben.Birthdate)
	assert.Equal(t, "Germany", ruben.Country)

	christy := dims[3]
	assert.Equal(t, "Male", christy.Gender, "ERP gender fills N/A")
	assert.Equal(t, silver.NotAvailable, christy.Country)
}

func TestCustomerKeysFollowNaturalID(t *testing.T) {
	in := &silver.Batch{Customers: []silver.Customer{
		{CstID: 30, CstKey: "C"},
		{CstID: 10, CstKey: "A"},
		{CstID: 20, CstKey: "B"},
	}}

	dims, err := BuildCustomerDimension(context.Background(), in, testutil.AsOf)
	require.NoError(t, err)
	assert.Equal(t, int64(10), dims[0].CustomerID)
	assert.Equal(t, int64(30), dims[2].CustomerID)
	assert.Equal(t, int64(3), dims[2].CustomerKey)
	assert.Equal(t, silver.NotAvailable, dims[0].Gender)
	assert.Equal(t, int64(30), in.Customers[0].CstID, "input is not reordered")
}

func TestBuildProductDimension(t *testing.T) {
	in := fixtureSilver(t)

	dims, err := BuildProductDimension(context.Background(), in, testutil.AsOf)
	require.NoError(t, err)
	require.Len(t, dims, 4, "historical versions excluded")

	numbers := make([]string, len(dims))
	for i, d := range dims {
		numbers[i] = d.ProductNumber
		assert.Equal(t, int64(i+1), d.ProductKey)
	}
	assert.Equal(t, []string{"FR-R92B-58", "FR-R92R-58", "BK-R93R-62", "HL-U509-R"}, numbers)

	assert.Equal(t, "Components", dims[0].Category)
	assert.Equal(t, "Road Frames", dims[0].Subcategory)
	assert.Equal(t, "Bikes", dims[2].Category)
	assert.Equal(t, "Yes", dims[2].Maintenance)

	helmet := dims[3]
	assert.Equal(t, int64(214), helmet.ProductID)
	assert.Equal(t, 13.0, helmet.Cost)
	assert.Equal(t, "Accessories", helmet.Category)
}

func TestProductOrder(t *testing.T) {
	undated := silver.Product{PrdKey: "Z"}
	early := silver.Product{PrdKey: "B", PrdStartDt: date(2010, 1, 1)}
	earlyA := silver.Product{PrdKey: "A", PrdStartDt: date(2010, 1, 1)}
	late := silver.Product{PrdKey: "A", PrdStartDt: date(2012, 1, 1)}

	assert.True(t, ProductOrder(undated, early))
	assert.True(t, ProductOrder(earlyA, early))
	assert.True(t, ProductOrder(early, late))
	assert.False(t, ProductOrder(late, earlyA))

	sameA := silver.Product{PrdKey: "A", PrdID: 1, PrdStartDt: date(2010, 1, 1)}
	sameB := silver.Product{PrdKey: "A", PrdID: 2, PrdStartDt: date(2010, 1, 1)}
	assert.True(t, ProductOrder(sameA, sameB))
}

func TestBuildSalesFact(t *testing.T) {
	in := fixtureSilver(t)
	customers, err := BuildCustomerDimension(context.Background(), in, testutil.AsOf)
	require.NoError(t, err)
	products, err := BuildProductDimension(context.Background(), in, testutil.AsOf)
	require.NoError(t, err)

	facts, err := BuildSalesFact(context.Background(), in.Sales, customers, products, testutil.AsOf)
	require.NoError(t, err)
	require.Len(t, facts, len(in.Sales), "left-outer: no line is dropped")

	key := func(v *int64) interface{} {
		if v == nil {
			return nil
		}
		return *v
	}

	expected := []struct {
		order    string
		product  interface{}
		customer interface{}
	}{
		{"SO43697", int64(3), int64(1)},
		{"SO43698", int64(4), int64(2)},
		{"SO43699", int64(4), int64(3)},
		{"SO43700", int64(1), int64(4)},
		{"SO43701", nil, nil},
		{"SO43702", int64(2), nil},
	}

	for i, want := range expected {
		assert.Equal(t, want.order, facts[i].OrderNumber)
		assert.Equal(t, want.product, key(facts[i].ProductKey), want.order)
		assert.Equal(t, want.customer, key(facts[i].CustomerKey), want.order)
	}
}

func TestReferentialCompleteness(t *testing.T) {
	in := fixtureSilver(t)
	model, _, err := NewAssembler(0).WithLogger(testutil.QuietLogger(nil)).Assemble(context.Background(), in, testutil.AsOf)
	require.NoError(t, err)

	customerKeys := map[int64]bool{}
	for _, c := range model.Customers {
		customerKeys[c.CustomerKey] = true
	}
	productKeys := map[int64]bool{}
	for _, p := range model.Products {
		productKeys[p.ProductKey] = true
	}

	for _, f := range model.Sales {
		if f.CustomerKey != nil {
			assert.True(t, customerKeys[*f.CustomerKey], f.OrderNumber)
		}
		if f.ProductKey != nil {
			assert.True(t, productKeys[*f.ProductKey], f.OrderNumber)
		}
	}
}

func TestAssembleReports(t *testing.T) {
	in := fixtureSilver(t)
	model, reports, err := NewAssembler(time.Minute).WithLogger(testutil.QuietLogger(nil)).Assemble(context.Background(), in, testutil.AsOf)
	require.NoError(t, err)

	require.Len(t, reports, 3)
	assert.Equal(t, "gold.dim_customers", reports[0].Stage)
	assert.Equal(t, "gold.dim_products", reports[1].Stage)
	assert.Equal(t, 6, reports[1].RowsIn)
	assert.Equal(t, 4, reports[1].RowsOut)
	assert.Equal(t, 2, reports[1].Dropped)
	assert.Equal(t, "gold.fact_sales", reports[2].Stage)
	assert.Len(t, model.Sales, 6)
}

func TestAssembleRecomputable(t *testing.T) {
	in := fixtureSilver(t)
	a := NewAssembler(0).WithLogger(testutil.QuietLogger(nil))

	first, _, err := a.Assemble(context.Background(), in, testutil.AsOf)
	require.NoError(t, err)
	second, _, err := a.Assemble(context.Background(), in, testutil.AsOf)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestAssembleCancelled(t *testing.T) {
	in := &silver.Batch{Customers: []silver.Customer{{CstID: 1}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	model, reports, err := NewAssembler(0).WithLogger(testutil.QuietLogger(nil)).Assemble(ctx, in, testutil.AsOf)
	require.Error(t, err)
	assert.Nil(t, model)
	assert.Len(t, reports, 1)

	stage, _ := errors.GetContext(err, "stage")
	assert.Equal(t, "gold.dim_customers", stage)
	assert.True(t, strings.Contains(err.Error(), "gold.dim_customers"))
}
