// Package vendors maintains the vendor catalog and vendor-site links.
package vendors

import "time"

// Category groups vendors by what they supply.
type Category string

const (
	CategoryMaterial  Category = "material"
	CategoryEquipment Category = "equipment"
	CategoryLabour    Category = "labour"
	CategoryOther     Category = "other"
)

// Valid reports whether the category is a known value.
func (c Category) Valid() bool {
	switch c {
	case CategoryMaterial, CategoryEquipment, CategoryLabour, CategoryOther:
		return true
	}
	return false
}

// Vendor represents a supplier of materials or services.
type Vendor struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Category  Category  `json:"category"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	GSTNumber string    `json:"gstNumber"`
	Status    string    `json:"status"`
	Rating    float64   `json:"rating"`
	SiteIDs   []int64   `json:"siteIds,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
