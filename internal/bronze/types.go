package bronze

// Entity names used for stage reports, log fields and store tables
const (
	EntityCRMCustomers  = "crm_cust_info"
	EntityCRMProducts   = "crm_prd_info"
	EntityCRMSales      = "crm_sales_details"
	EntityERPCustomers  = "erp_cust_az12"
	EntityERPLocations  = "erp_loc_a101"
	EntityERPCategories = "erp_px_cat_g1v2"
)

// CRMCustomer is one raw row of the CRM customer source
type CRMCustomer struct {
	SourceOffset     int    `json:"source_offset"`
	CstID            string `json:"cst_id"`
	CstKey           string `json:"cst_key"`
	CstFirstname     string `json:"cst_firstname"`
	CstLastname      string `json:"cst_lastname"`
	CstMaritalStatus string `json:"cst_marital_status"`
	CstGndr          string `json:"cst_gndr"`
	CstCreateDate    string `json:"cst_create_date"`
}

// CRMProduct is one raw row of the CRM product source
type CRMProduct struct {
	SourceOffset int    `json:"source_offset"`
	PrdID        string `json:"prd_id"`
	PrdKey       string `json:"prd_key"`
	PrdNm        string `json:"prd_nm"`
	PrdCost      string `json:"prd_cost"`
	PrdLine      string `json:"prd_line"`
	PrdStartDt   string `json:"prd_start_dt"`
	PrdEndDt     string `json:"prd_end_dt"`
}

// CRMSalesLine is one raw row of the CRM sales details source
type CRMSalesLine struct {
	SourceOffset int    `json:"source_offset"`
	SlsOrdNum    string `json:"sls_ord_num"`
	SlsPrdKey    string `json:"sls_prd_key"`
	SlsCustID    string `json:"sls_cust_id"`
	SlsOrderDt   string `json:"sls_order_dt"`
	SlsShipDt    string `json:"sls_ship_dt"`
	SlsDueDt     string `json:"sls_due_dt"`
	SlsSales     string `json:"sls_sales"`
	SlsQuantity  string `json:"sls_quantity"`
	SlsPrice     string `json:"sls_price"`
}

// ERPCustomer is one raw row of the ERP customer source
type ERPCustomer struct {
	SourceOffset int    `json:"source_offset"`
	CID          string `json:"cid"`
	Bdate        string `json:"bdate"`
	Gen          string `json:"gen"`
}

// ERPLocation is one raw row of the ERP location source
type ERPLocation struct {
	SourceOffset int    `json:"source_offset"`
	CID          string `json:"cid"`
	Cntry        string `json:"cntry"`
}

// ERPCategory is one raw row of the ERP category source
type ERPCategory struct {
	SourceOffset int    `json:"source_offset"`
	CatID        string `json:"id"`
	Cat          string `json:"cat"`
	Subcat       string `json:"subcat"`
	Maintenance  string `json:"maintenance"`
}

// Batch holds the six bronze tables of one run
type Batch struct {
	CRMCustomers  []CRMCustomer  `json:"crm_cust_info"`
	CRMProducts   []CRMProduct   `json:"crm_prd_info"`
	CRMSales      []CRMSalesLine `json:"crm_sales_details"`
	ERPCustomers  []ERPCustomer  `json:"erp_cust_az12"`
	ERPLocations  []ERPLocation  `json:"erp_loc_a101"`
	ERPCategories []ERPCategory  `json:"erp_px_cat_g1v2"`
}

// Counts returns the row count of every bronze table keyed by entity name
func (b *Batch) Counts() map[string]int {
	return map[string]int{
		EntityCRMCustomers:  len(b.CRMCustomers),
		EntityCRMProducts:   len(b.CRMProducts),
		EntityCRMSales:      len(b.CRMSales),
		EntityERPCustomers:  len(b.ERPCustomers),
		EntityERPLocations:  len(b.ERPLocations),
		EntityERPCategories: len(b.ERPCategories),
	}
}

// Entities lists entity names in load order
func Entities() []string {
	return []string{
		EntityCRMCustomers,
		EntityCRMProducts,
		EntityCRMSales,
		EntityERPCustomers,
		EntityERPLocations,
		EntityERPCategories,
	}
}
