package models

import "time"

// Kind names one owner-scoped collection.
type Kind string

const (
	KindPlots      Kind = "plots"
	KindActivities Kind = "activities"
	KindRecipes    Kind = "recipes"
	KindPurchases  Kind = "purchases"
	KindEmployees  Kind = "employees"
	KindHarvests   Kind = "harvests"

	// KindSetup holds bookkeeping documents such as the example-data marker.
	KindSetup Kind = "setup"
)

// Kinds lists the six entity collections in a fixed order.
var Kinds = []Kind{KindPlots, KindActivities, KindRecipes, KindPurchases, KindEmployees, KindHarvests}

func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Plot is a cultivated land subdivision (talhão).
type Plot struct {
	ID             string  `json:"id" bson:"-"`
	Name           string  `json:"name" bson:"name"`
	Cultivar       string  `json:"cultivar" bson:"cultivar"`
	Spacing        string  `json:"spacing" bson:"spacing"`
	AreaHectares   float64 `json:"areaHectares" bson:"areaHectares"`
	PlantCount     int     `json:"plantCount" bson:"plantCount"`
	PlantingYear   int     `json:"plantingYear" bson:"plantingYear"`
	AltitudeMeters int     `json:"altitudeMeters" bson:"altitudeMeters"`
}

// Activity is a dated intervention applying products to a plot.
type Activity struct {
	ID          string     `json:"id" bson:"-"`
	PlotID      string     `json:"plotId,omitempty" bson:"plotId,omitempty"`
	PlotName    string     `json:"plotName" bson:"plotName"`
	Date        *time.Time `json:"date,omitempty" bson:"date,omitempty"`
	ServiceType string     `json:"serviceType" bson:"serviceType"`
	Products    []Product  `json:"products" bson:"products"`
	Note        string     `json:"note" bson:"note"`
	CreatedAt   *time.Time `json:"createdAt,omitempty" bson:"createdAt,omitempty"`
}

// Purchase is a procurement record for a consumable.
type Purchase struct {
	ID           string     `json:"id" bson:"-"`
	ProductName  string     `json:"productName" bson:"productName"`
	Unit         string     `json:"unit" bson:"unit"`
	PurchaseDate *time.Time `json:"purchaseDate,omitempty" bson:"purchaseDate,omitempty"`
	Quantity     float64    `json:"quantity" bson:"quantity"`
	Price        float64    `json:"price" bson:"price"`
	CreatedAt    *time.Time `json:"createdAt,omitempty" bson:"createdAt,omitempty"`
}

// Employee birth dates stay plain strings, as typed by the user.
type Employee struct {
	ID         string     `json:"id" bson:"-"`
	FullName   string     `json:"fullName" bson:"fullName"`
	BirthDate  string     `json:"birthDate" bson:"birthDate"`
	NationalID string     `json:"nationalId" bson:"nationalId"`
	CreatedAt  *time.Time `json:"createdAt,omitempty" bson:"createdAt,omitempty"`
}

// HarvestRecord links a plot and an employee to harvested quantities.
type HarvestRecord struct {
	ID               string     `json:"id" bson:"-"`
	PlotID           string     `json:"plotId,omitempty" bson:"plotId,omitempty"`
	PlotName         string     `json:"plotName" bson:"plotName"`
	EmployeeID       string     `json:"employeeId,omitempty" bson:"employeeId,omitempty"`
	EmployeeName     string     `json:"employeeName" bson:"employeeName"`
	BushelsAlqueires float64    `json:"bushelsAlqueires" bson:"bushelsAlqueires"`
	Liters           float64    `json:"liters" bson:"liters"`
	PricePerUnit     float64    `json:"pricePerUnit" bson:"pricePerUnit"`
	Date             *time.Time `json:"date,omitempty" bson:"date,omitempty"`
	CreatedAt        *time.Time `json:"createdAt,omitempty" bson:"createdAt,omitempty"`
}

func (p *Plot) SetID(id string)          { p.ID = id }
func (a *Activity) SetID(id string)      { a.ID = id }
func (p *Purchase) SetID(id string)      { p.ID = id }
func (e *Employee) SetID(id string)      { e.ID = id }
func (h *HarvestRecord) SetID(id string) { h.ID = id }

func (p Plot) Key() string          { return p.ID }
func (a Activity) Key() string      { return a.ID }
func (p Purchase) Key() string      { return p.ID }
func (e Employee) Key() string      { return e.ID }
func (h HarvestRecord) Key() string { return h.ID }
