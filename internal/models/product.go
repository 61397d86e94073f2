package models

// Product is a local mirror of a backend catalog product.
type Product struct {
	ID       int64   `db:"id" json:"id"`
	Name     string  `db:"name" json:"name"`
	SKU      string  `db:"sku" json:"sku"`
	Unit     string  `db:"unit" json:"unit"`
	Price    float64 `db:"price" json:"price"`
	Image    string  `db:"image" json:"image,omitempty"`
	Status   string  `db:"status" json:"status"`
	LastSync int64   `db:"last_sync" json:"lastSync"`
}

// TableName returns the table name for Product.
func (Product) TableName() string {
	return "products"
}
