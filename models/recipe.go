package models

import "strings"

// Product is one line of a treatment: what is applied and how much.
type Product struct {
	Name string `json:"name" bson:"name"`
	Dose string `json:"dose" bson:"dose"`
	Unit string `json:"unit" bson:"unit"`
}

// Recipe is a reusable product list for a service type.
type Recipe struct {
	ID          string    `json:"id" bson:"-"`
	Name        string    `json:"name" bson:"name"`
	ServiceType string    `json:"serviceType" bson:"serviceType"`
	Products    []Product `json:"products" bson:"products"`
}

func (r *Recipe) SetID(id string) { r.ID = id }
func (r Recipe) Key() string      { return r.ID }

// CopyProducts returns a deep copy so later edits to the source slice do not
// leak into the copy.
func CopyProducts(in []Product) []Product {
	if in == nil {
		return []Product{}
	}
	out := make([]Product, len(in))
	copy(out, in)
	return out
}

// ProductsLabel renders products as "name (dose unit)" joined by ", ".
func ProductsLabel(products []Product) string {
	parts := make([]string, 0, len(products))
	for _, p := range products {
		parts = append(parts, p.Name+" ("+p.Dose+" "+p.Unit+")")
	}
	return strings.Join(parts, ", ")
}
