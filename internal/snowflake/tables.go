package snowflake

import (
	"fmt"
	"strings"

	"medallion/internal/bronze"
	"medallion/internal/gold"
	"medallion/internal/warehouse"
)

const (
	snapshotsTable = "MEDALLION_SNAPSHOTS"
	pointerTable   = "MEDALLION_CURRENT"
	pointerName    = "current"
)

type column struct {
	name    string
	sqlType string
}

// table maps one silver or gold slice onto a Snowflake table
type table struct {
	name    string
	columns []column
	rows    func(s *warehouse.Snapshot) [][]interface{}
}

func (t table) createSQL() string {
	defs := []string{"SNAPSHOT_ID VARCHAR NOT NULL"}
	for _, c := range t.columns {
		defs = append(defs, c.name+" "+c.sqlType)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", t.name, strings.Join(defs, ", "))
}

// viewSQL exposes the rows of the current snapshot under a stable name
func (t table) viewSQL() string {
	return fmt.Sprintf(
		"CREATE OR REPLACE VIEW CURRENT_%s AS SELECT * FROM %s WHERE SNAPSHOT_ID = (SELECT SNAPSHOT_ID FROM %s WHERE NAME = '%s')",
		t.name, t.name, pointerTable, pointerName)
}

// insertSQL builds a multi-row INSERT for n rows
func (t table) insertSQL(n int) string {
	names := []string{"SNAPSHOT_ID"}
	for _, c := range t.columns {
		names = append(names, c.name)
	}
	tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ") + ")"

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", t.name, strings.Join(names, ", "))
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(tuple)
	}
	return b.String()
}

func cols(pairs ...string) []column {
	out := make([]column, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, column{name: pairs[i], sqlType: pairs[i+1]})
	}
	return out
}

// tables lists every published table in dependency order
var tables = []table{
	{
		"SILVER_" + strings.ToUpper(bronze.EntityCRMCustomers),
		cols("CST_ID", "NUMBER", "CST_KEY", "VARCHAR", "CST_FIRSTNAME", "VARCHAR",
			"CST_LASTNAME", "VARCHAR", "CST_MARITAL_STATUS", "VARCHAR", "CST_GNDR", "VARCHAR",
			"CST_CREATE_DATE", "DATE", "SOURCE_OFFSET", "NUMBER", "DWH_CREATE_DATE", "TIMESTAMP_NTZ"),
		func(s *warehouse.Snapshot) [][]interface{} {
			out := make([][]interface{}, 0, len(s.Silver.Customers))
			for _, r := range s.Silver.Customers {
				out = append(out, []interface{}{r.CstID, r.CstKey, r.CstFirstname, r.CstLastname,
					r.CstMaritalStatus, r.CstGndr, r.CstCreateDate, r.SourceOffset, r.LoadedAt})
			}
			return out
		},
	},
	{
		"SILVER_" + strings.ToUpper(bronze.EntityCRMProducts),
		cols("PRD_ID", "NUMBER", "CAT_ID", "VARCHAR", "PRD_KEY", "VARCHAR", "PRD_NM", "VARCHAR",
			"PRD_COST", "FLOAT", "PRD_LINE", "VARCHAR", "PRD_START_DT", "DATE", "PRD_END_DT", "DATE",
			"SOURCE_OFFSET", "NUMBER", "DWH_CREATE_DATE", "TIMESTAMP_NTZ"),
		func(s *warehouse.Snapshot) [][]interface{} {
			out := make([][]interface{}, 0, len(s.Silver.Products))
			for _, r := range s.Silver.Products {
				out = append(out, []interface{}{r.PrdID, r.CatID, r.PrdKey, r.PrdNm, r.PrdCost,
					r.PrdLine, r.PrdStartDt, r.PrdEndDt, r.SourceOffset, r.LoadedAt})
			}
			return out
		},
	},
	{
		"SILVER_" + strings.ToUpper(bronze.EntityCRMSales),
		cols("SLS_ORD_NUM", "VARCHAR", "SLS_PRD_KEY", "VARCHAR", "SLS_CUST_ID", "NUMBER",
			"SLS_ORDER_DT", "DATE", "SLS_SHIP_DT", "DATE", "SLS_DUE_DT", "DATE", "SLS_SALES", "FLOAT",
			"SLS_QUANTITY", "NUMBER", "SLS_PRICE", "FLOAT", "SOURCE_OFFSET", "NUMBER", "DWH_CREATE_DATE", "TIMESTAMP_NTZ"),
		func(s *warehouse.Snapshot) [][]interface{} {
			out := make([][]interface{}, 0, len(s.Silver.Sales))
			for _, r := range s.Silver.Sales {
				out = append(out, []interface{}{r.SlsOrdNum, r.SlsPrdKey, r.SlsCustID, r.SlsOrderDt,
					r.SlsShipDt, r.SlsDueDt, r.SlsSales, r.SlsQuantity, r.SlsPrice, r.SourceOffset, r.LoadedAt})
			}
			return out
		},
	},
	{
		"SILVER_" + strings.ToUpper(bronze.EntityERPCustomers),
		cols("CID", "VARCHAR", "BDATE", "DATE", "GEN", "VARCHAR",
			"SOURCE_OFFSET", "NUMBER", "DWH_CREATE_DATE", "TIMESTAMP_NTZ"),
		func(s *warehouse.Snapshot) [][]interface{} {
			out := make([][]interface{}, 0, len(s.Silver.ERPCustomers))
			for _, r := range s.Silver.ERPCustomers {
				out = append(out, []interface{}{r.CID, r.Bdate, r.Gen, r.SourceOffset, r.LoadedAt})
			}
			return out
		},
	},
	{
		"SILVER_" + strings.ToUpper(bronze.EntityERPLocations),
		cols("CID", "VARCHAR", "CNTRY", "VARCHAR", "SOURCE_OFFSET", "NUMBER", "DWH_CREATE_DATE", "TIMESTAMP_NTZ"),
		func(s *warehouse.Snapshot) [][]interface{} {
			out := make([][]interface{}, 0, len(s.Silver.ERPLocations))
			for _, r := range s.Silver.ERPLocations {
				out = append(out, []interface{}{r.CID, r.Cntry, r.SourceOffset, r.LoadedAt})
			}
			return out
		},
	},
	{
		"SILVER_" + strings.ToUpper(bronze.EntityERPCategories),
		cols("ID", "VARCHAR", "CAT", "VARCHAR", "SUBCAT", "VARCHAR", "MAINTENANCE", "VARCHAR",
			"SOURCE_OFFSET", "NUMBER", "DWH_CREATE_DATE", "TIMESTAMP_NTZ"),
		func(s *warehouse.Snapshot) [][]interface{} {
			out := make([][]interface{}, 0, len(s.Silver.ERPCategories))
			for _, r := range s.Silver.ERPCategories {
				out = append(out, []interface{}{r.CatID, r.Cat, r.Subcat, r.Maintenance, r.SourceOffset, r.LoadedAt})
			}
			return out
		},
	},
	{
		"GOLD_" + strings.ToUpper(gold.TableCustomers),
		cols("CUSTOMER_KEY", "NUMBER", "CUSTOMER_ID", "NUMBER", "CUSTOMER_NUMBER", "VARCHAR",
			"FIRST_NAME", "VARCHAR", "LAST_NAME", "VARCHAR", "COUNTRY", "VARCHAR", "MARITAL_STATUS", "VARCHAR",
			"GENDER", "VARCHAR", "BIRTHDATE", "DATE", "CREATE_DATE", "DATE", "DWH_CREATE_DATE", "TIMESTAMP_NTZ"),
		func(s *warehouse.Snapshot) [][]interface{} {
			out := make([][]interface{}, 0, len(s.Gold.Customers))
			for _, r := range s.Gold.Customers {
				out = append(out, []interface{}{r.CustomerKey, r.CustomerID, r.CustomerNumber, r.FirstName,
					r.LastName, r.Country, r.MaritalStatus, r.Gender, r.Birthdate, r.CreateDate, r.LoadedAt})
			}
			return out
		},
	},
	{
		"GOLD_" + strings.ToUpper(gold.TableProducts),
		cols("PRODUCT_KEY", "NUMBER", "PRODUCT_ID", "NUMBER", "PRODUCT_NUMBER", "VARCHAR",
			"PRODUCT_NAME", "VARCHAR", "CATEGORY_ID", "VARCHAR", "CATEGORY", "VARCHAR", "SUBCATEGORY", "VARCHAR",
			"MAINTENANCE", "VARCHAR", "COST", "FLOAT", "PRODUCT_LINE", "VARCHAR", "START_DATE", "DATE",
			"DWH_CREATE_DATE", "TIMESTAMP_NTZ"),
		func(s *warehouse.Snapshot) [][]interface{} {
			out := make([][]interface{}, 0, len(s.Gold.Products))
			for _, r := range s.Gold.Products {
				out = append(out, []interface{}{r.ProductKey, r.ProductID, r.ProductNumber, r.ProductName,
					r.CategoryID, r.Category, r.Subcategory, r.Maintenance, r.Cost, r.ProductLine, r.StartDate, r.LoadedAt})
			}
			return out
		},
	},
	{
		"GOLD_" + strings.ToUpper(gold.TableSales),
		cols("ORDER_NUMBER", "VARCHAR", "PRODUCT_KEY", "NUMBER", "CUSTOMER_KEY", "NUMBER",
			"ORDER_DATE", "DATE", "SHIPPING_DATE", "DATE", "DUE_DATE", "DATE", "SALES_AMOUNT", "FLOAT",
			"QUANTITY", "NUMBER", "PRICE", "FLOAT", "DWH_CREATE_DATE", "TIMESTAMP_NTZ"),
		func(s *warehouse.Snapshot) [][]interface{} {
			out := make([][]interface{}, 0, len(s.Gold.Sales))
			for _, r := range s.Gold.Sales {
				out = append(out, []interface{}{r.OrderNumber, r.ProductKey, r.CustomerKey, r.OrderDate,
					r.ShippingDate, r.DueDate, r.SalesAmount, r.Quantity, r.Price, r.LoadedAt})
			}
			return out
		},
	},
}
