package silver

import "time"

// NotAvailable is the fallback label of every controlled vocabulary
const NotAvailable = "N/A"

// Customer is a deduplicated CRM customer
type Customer struct {
	CstID            int64      `json:"cst_id"`
	CstKey           string     `json:"cst_key"`
	CstFirstname     string     `json:"cst_firstname"`
	CstLastname      string     `json:"cst_lastname"`
	CstMaritalStatus string     `json:"cst_marital_status"`
	CstGndr          string     `json:"cst_gndr"`
	CstCreateDate    *time.Time `json:"cst_create_date"`
	SourceOffset     int        `json:"source_offset"`
	LoadedAt         time.Time  `json:"dwh_create_date"`
}

// Product is one version of a CRM product
type Product struct {
	PrdID        int64      `json:"prd_id"`
	CatID        string     `json:"cat_id"`
	PrdKey       string     `json:"prd_key"`
	PrdNm        string     `json:"prd_nm"`
	PrdCost      float64    `json:"prd_cost"`
	PrdLine      string     `json:"prd_line"`
	PrdStartDt   *time.Time `json:"prd_start_dt"`
	PrdEndDt     *time.Time `json:"prd_end_dt"`
	SourceOffset int        `json:"source_offset"`
	LoadedAt     time.Time  `json:"dwh_create_date"`
}

// Current reports whether no later version supersedes this one
func (p Product) Current() bool {
	return p.PrdEndDt == nil
}

// SalesLine is a repaired CRM sales line
type SalesLine struct {
	SlsOrdNum    string     `json:"sls_ord_num"`
	SlsPrdKey    string     `json:"sls_prd_key"`
	SlsCustID    *int64     `json:"sls_cust_id"`
	SlsOrderDt   *time.Time `json:"sls_order_dt"`
	SlsShipDt    *time.Time `json:"sls_ship_dt"`
	SlsDueDt     *time.Time `json:"sls_due_dt"`
	SlsSales     *float64   `json:"sls_sales"`
	SlsQuantity  *int64     `json:"sls_quantity"`
	SlsPrice     *float64   `json:"sls_price"`
	SourceOffset int        `json:"source_offset"`
	LoadedAt     time.Time  `json:"dwh_create_date"`
}

// ERPCustomer is an ERP customer keyed by the CRM business key
type ERPCustomer struct {
	CID          string     `json:"cid"`
	Bdate        *time.Time `json:"bdate"`
	Gen          string     `json:"gen"`
	SourceOffset int        `json:"source_offset"`
	LoadedAt     time.Time  `json:"dwh_create_date"`
}

// ERPLocation is an ERP customer location
type ERPLocation struct {
	CID          string    `json:"cid"`
	Cntry        string    `json:"cntry"`
	SourceOffset int       `json:"source_offset"`
	LoadedAt     time.Time `json:"dwh_create_date"`
}

// ERPCategory is an ERP product category
type ERPCategory struct {
	CatID        string    `json:"id"`
	Cat          string    `json:"cat"`
	Subcat       string    `json:"subcat"`
	Maintenance  string    `json:"maintenance"`
	SourceOffset int       `json:"source_offset"`
	LoadedAt     time.Time `json:"dwh_create_date"`
}

// Batch holds the six silver tables of one run
type Batch struct {
	Customers     []Customer    `json:"crm_cust_info"`
	Products      []Product     `json:"crm_prd_info"`
	Sales         []SalesLine   `json:"crm_sales_details"`
	ERPCustomers  []ERPCustomer `json:"erp_cust_az12"`
	ERPLocations  []ERPLocation `json:"erp_loc_a101"`
	ERPCategories []ERPCategory `json:"erp_px_cat_g1v2"`
}

// Stats counts what a conformance operation did
type Stats struct {
	In       int
	Out      int
	Dropped  int
	Repaired int
}
