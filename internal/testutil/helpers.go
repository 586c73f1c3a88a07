package testutil

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"medallion/internal/common"
	"medallion/internal/config"
	"medallion/internal/observability"
	"medallion/pkg/models"
)

// AsOf is the processing time the fixture expectations are computed against
var AsOf = time.Date(2025, 10, 16, 0, 0, 0, 0, time.UTC)

// Fixture sources. Each one carries the dirty rows the conformance rules exist for.
const (
	CRMCustomersCSV = "cst_id,cst_key,cst_firstname,cst_lastname,cst_marital_status,cst_gndr,cst_create_date\n" +
		"11000,AW00011000, Jon ,Yang ,M,M,2025-10-06\n" +
		"11001,AW00011001,Eugene,Huang,S,,2025-10-06\n" +
		"11001,AW00011001,Eugene ,Huang,M,M,2025-10-07\n" +
		"11002,AW00011002,Ruben,Torres, m , f ,2025-10-06\n" +
		",AW00099999,Ghost,Row,S,M,2025-10-06\n" +
		"abc,AW00099998,Bad,Id,S,M,2025-10-06\n" +
		"11003,AW00011003,Christy,Zhu,X,N,\n"

	CRMProductsCSV = "prd_id,prd_key,prd_nm,prd_cost,prd_line,prd_start_dt,prd_end_dt\n" +
		"210,CO-RF-FR-R92B-58,HL Road Frame - Black- 58,,R ,2003-07-01,\n" +
		"211,CO-RF-FR-R92R-58,HL Road Frame - Red- 58,,R ,2003-07-01,\n" +
		"212,AC-HE-HL-U509-R,Sport-100 Helmet- Red,12,S ,2011-07-01,2007-12-28\n" +
		"213,AC-HE-HL-U509-R,Sport-100 Helmet- Red,14,S ,2012-07-01,2008-12-27\n" +
		"214,AC-HE-HL-U509-R,Sport-100 Helmet- Red,13,S ,2013-07-01,\n" +
		"215,BI-RB-BK-R93R-62,Road-150 Red- 62,2171,X,2013-07-01,\n"

	CRMSalesCSV = "sls_ord_num,sls_prd_key,sls_cust_id,sls_order_dt,sls_ship_dt,sls_due_dt,sls_sales,sls_quantity,sls_price\n" +
		"SO43697,BK-R93R-62,11000,20101229,20110105,20110110,3578,1,3578\n" +
		"SO43698,HL-U509-R,11001,20101229,20110105,20110110,,2,14\n" +
		"SO43699,HL-U509-R,11002,0,20110105,2011011,30,2,-14\n" +
		"SO43700,FR-R92B-58,11003,20240230,20240229,20240301,0,5,0\n" +
		"SO43701,ZZ-NOPE,99999,20110101,20110108,20110113,50,1,\n" +
		"SO43702,FR-R92R-58,,20110101,20110108,20110113,10,1,10\n" +
		",FR-R92R-58,11000,20110101,20110108,20110113,10,1,10\n" +
		"SO43703,FR-R92R-58,X11,20110101,20110108,20110113,10,1,10\n"

	ERPCustomersCSV = "CID,BDATE,GEN\n" +
		"NASAW00011000,1971-10-06,Male\n" +
		"AW00011001,1976-05-10,F\n" +
		"NASAW00011002,2099-01-01,FEMALE \n" +
		"NASAW00011003,1980-01-01,M\n" +
		"NASAW00011000,1950-01-01,Female\n"

	ERPLocationsCSV = "CID,CNTRY\n" +
		"AW-00011000,Australia\n" +
		"AW-00011001,US\n" +
		"AW-00011002, de \n" +
		"AW-00011003,\n"

	ERPCategoriesCSV = "ID,CAT,SUBCAT,MAINTENANCE\n" +
		"AC_HE,Accessories,Helmets,Yes\n" +
		"BI_RB,Bikes,Road Bikes, Yes \n" +
		"CO_RF,Components,Road Frames,No\n"
)

// TestHelper provides common test utilities
type TestHelper struct {
	t *testing.T
}

// NewTestHelper creates a new test helper
func NewTestHelper(t *testing.T) *TestHelper {
	return &TestHelper{t: t}
}

// WriteFile writes content to a file in the given directory
func (h *TestHelper) WriteFile(dir, filename, content string) string {
	h.t.Helper()
	path := filepath.Join(dir, filename)

	if err := os.MkdirAll(filepath.Dir(path), common.DirPermissionNormal); err != nil {
		h.t.Fatalf("Failed to create directories: %v", err)
	}

	if err := os.WriteFile(path, []byte(content), common.FilePermissionSecure); err != nil {
		h.t.Fatalf("Failed to write file %s: %v", path, err)
	}

	return path
}

// WriteSources writes the fixture CSVs under dir using the default layout
func (h *TestHelper) WriteSources(dir string) models.Sources {
	h.t.Helper()
	h.WriteFile(dir, config.DefaultCRMCustomers, CRMCustomersCSV)
	h.WriteFile(dir, config.DefaultCRMProducts, CRMProductsCSV)
	h.WriteFile(dir, config.DefaultCRMSales, CRMSalesCSV)
	h.WriteFile(dir, config.DefaultERPCustomers, ERPCustomersCSV)
	h.WriteFile(dir, config.DefaultERPLocations, ERPLocationsCSV)
	h.WriteFile(dir, config.DefaultERPCategories, ERPCategoriesCSV)
	return SourcesFor(dir)
}

// SourcesFor returns the default source layout rooted at dir
func SourcesFor(dir string) models.Sources {
	return models.Sources{
		Dir:           dir,
		CRMCustomers:  config.DefaultCRMCustomers,
		CRMProducts:   config.DefaultCRMProducts,
		CRMSales:      config.DefaultCRMSales,
		ERPCustomers:  config.DefaultERPCustomers,
		ERPLocations:  config.DefaultERPLocations,
		ERPCategories: config.DefaultERPCategories,
	}
}

// Config returns a validated in-memory-store config over the fixture sources
func (h *TestHelper) Config(dir string) *models.Config {
	h.t.Helper()
	cfg := &models.Config{Sources: h.WriteSources(dir)}
	cfg.Store.Driver = "memory"
	config.ApplyDefaults(cfg)
	return cfg
}

// QuietLogger returns a logger that discards everything below errors
func QuietLogger(w io.Writer) *observability.Logger {
	if w == nil {
		w = io.Discard
	}
	return observability.NewLogger(observability.LoggerConfig{
		Level:   observability.ErrorLevel,
		Output:  w,
		Service: "medallion-test",
	})
}

// CaptureOutput captures stdout and stderr during function execution
func (h *TestHelper) CaptureOutput(f func()) (stdout, stderr string) {
	oldStdout := os.Stdout
	rOut, wOut, _ := os.Pipe()
	os.Stdout = wOut

	oldStderr := os.Stderr
	rErr, wErr, _ := os.Pipe()
	os.Stderr = wErr

	var outBuf, errBuf bytes.Buffer
	outDone := make(chan struct{})
	errDone := make(chan struct{})
	go func() { _, _ = io.Copy(&outBuf, rOut); close(outDone) }()
	go func() { _, _ = io.Copy(&errBuf, rErr); close(errDone) }()

	f()

	wOut.Close()
	wErr.Close()
	<-outDone
	<-errDone
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	return outBuf.String(), errBuf.String()
}
