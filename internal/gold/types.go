package gold

import "time"

// Table names of the gold projections
const (
	TableCustomers = "dim_customers"
	TableProducts  = "dim_products"
	TableSales     = "fact_sales"
)

// CustomerDim is one row of the customer dimension
type CustomerDim struct {
	CustomerKey    int64      `json:"customer_key"`
	CustomerID     int64      `json:"customer_id"`
	CustomerNumber string     `json:"customer_number"`
	FirstName      string     `json:"first_name"`
	LastName       string     `json:"last_name"`
	Country        string     `json:"country"`
	MaritalStatus  string     `json:"marital_status"`
	Gender         string     `json:"gender"`
	Birthdate      *time.Time `json:"birthdate"`
	CreateDate     *time.Time `json:"create_date"`
	LoadedAt       time.Time  `json:"dwh_create_date"`
}

// ProductDim is one row of the product dimension
type ProductDim struct {
	ProductKey    int64      `json:"product_key"`
	ProductID     int64      `json:"product_id"`
	ProductNumber string     `json:"product_number"`
	ProductName   string     `json:"product_name"`
	CategoryID    string     `json:"category_id"`
	Category      string     `json:"category"`
	Subcategory   string     `json:"subcategory"`
	Maintenance   string     `json:"maintenance"`
	Cost          float64    `json:"cost"`
	ProductLine   string     `json:"product_line"`
	StartDate     *time.Time `json:"start_date"`
	LoadedAt      time.Time  `json:"dwh_create_date"`
}

// SalesFact is one row of the sales fact
type SalesFact struct {
	OrderNumber  string     `json:"order_number"`
	ProductKey   *int64     `json:"product_key"`
	CustomerKey  *int64     `json:"customer_key"`
	OrderDate    *time.Time `json:"order_date"`
	ShippingDate *time.Time `json:"shipping_date"`
	DueDate      *time.Time `json:"due_date"`
	SalesAmount  *float64   `json:"sales_amount"`
	Quantity     *int64     `json:"quantity"`
	Price        *float64   `json:"price"`
	LoadedAt     time.Time  `json:"dwh_create_date"`
}

// Model holds the three gold projections of one run
type Model struct {
	Customers []CustomerDim `json:"dim_customers"`
	Products  []ProductDim  `json:"dim_products"`
	Sales     []SalesFact   `json:"fact_sales"`
}
