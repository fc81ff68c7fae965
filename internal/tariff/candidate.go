// Package tariff defines the candidate records produced by the extraction
// engine. Candidates are immutable values: built once by the assembler,
// then handed to the caller or discarded.
package tariff

import "strings"

// TransportType enumerates the supported transport modes.
type TransportType string

const (
	TransportAuto       TransportType = "auto"
	TransportAir        TransportType = "air"
	TransportSea        TransportType = "sea"
	TransportRail       TransportType = "rail"
	TransportMultimodal TransportType = "multimodal"
)

// Valid reports whether t is one of the known transport modes.
func (t TransportType) Valid() bool {
	switch t {
	case TransportAuto, TransportAir, TransportSea, TransportRail, TransportMultimodal:
		return true
	}
	return false
}

// ParseTransport normalizes a transport-type hint. The second return value
// is false for unknown hints (the caller falls back to detection).
func ParseTransport(s string) (TransportType, bool) {
	t := TransportType(strings.ToLower(strings.TrimSpace(s)))
	if t.Valid() {
		return t, true
	}
	return "", false
}

// Ancillary cost keys. Fee names outside this set are dropped by the
// extractor rather than stored under ad hoc keys.
const (
	CostCBX              = "cbx"
	CostTerminalHandling = "terminal_handling"
	CostAutoPickup       = "auto_pickup"
	CostSecurity         = "security"
	CostPrecarriage      = "precarriage"
	CostCarParking       = "car_parking"
	CostHandling         = "handling"
	CostDeclaration      = "declaration"
	CostRegistration     = "registration"
)

// CostKeys lists all ancillary cost keys in output order.
var CostKeys = []string{
	CostCBX,
	CostTerminalHandling,
	CostAutoPickup,
	CostSecurity,
	CostPrecarriage,
	CostCarParking,
	CostHandling,
	CostDeclaration,
	CostRegistration,
}

// Candidate is one extracted tariff: a route with prices, delivery terms
// and ancillary fees. Optional fields are pointers so absent values render
// as JSON null instead of zero values.
type Candidate struct {
	TransportType TransportType `json:"transport_type"`
	Basis         string        `json:"basis"`

	OriginCity         string `json:"origin_city"`
	OriginCountry      string `json:"origin_country"`
	DestinationCity    string `json:"destination_city"`
	DestinationCountry string `json:"destination_country"`

	VehicleType *string `json:"vehicle_type"`

	PriceUSD *float64 `json:"price_usd"`
	PriceRUB *float64 `json:"price_rub"`
	PriceCNY *float64 `json:"price_cny"`

	TransitTimeDays *int    `json:"transit_time_days"`
	ValidityDate    *string `json:"validity_date"`

	CBXCost              *float64 `json:"cbx_cost"`
	TerminalHandlingCost *float64 `json:"terminal_handling_cost"`
	AutoPickupCost       *float64 `json:"auto_pickup_cost"`
	SecurityCost         *float64 `json:"security_cost"`
	PrecarriageCost      *float64 `json:"precarriage_cost"`
	CarParkingCost       *float64 `json:"car_parking_cost"`
	HandlingCost         *float64 `json:"handling_cost"`
	DeclarationCost      *float64 `json:"declaration_cost"`
	RegistrationCost     *float64 `json:"registration_cost"`

	SourceStrategy string `json:"source_strategy"`
	Supplier       string `json:"supplier,omitempty"`
}

// HasRoute reports whether both route endpoints are known.
func (c *Candidate) HasRoute() bool {
	return c.OriginCity != "" && c.DestinationCity != ""
}

// HasPrice reports whether any of the price fields is set.
func (c *Candidate) HasPrice() bool {
	return c.PriceUSD != nil || c.PriceRUB != nil || c.PriceCNY != nil
}

// SetCost stores an ancillary fee under its fixed key. Unknown keys are
// ignored, which keeps unrecognized fee names out of the record.
func (c *Candidate) SetCost(key string, value float64) {
	v := value
	switch key {
	case CostCBX:
		c.CBXCost = &v
	case CostTerminalHandling:
		c.TerminalHandlingCost = &v
	case CostAutoPickup:
		c.AutoPickupCost = &v
	case CostSecurity:
		c.SecurityCost = &v
	case CostPrecarriage:
		c.PrecarriageCost = &v
	case CostCarParking:
		c.CarParkingCost = &v
	case CostHandling:
		c.HandlingCost = &v
	case CostDeclaration:
		c.DeclarationCost = &v
	case CostRegistration:
		c.RegistrationCost = &v
	}
}

// Cost returns the ancillary fee stored under key, or nil.
func (c *Candidate) Cost(key string) *float64 {
	switch key {
	case CostCBX:
		return c.CBXCost
	case CostTerminalHandling:
		return c.TerminalHandlingCost
	case CostAutoPickup:
		return c.AutoPickupCost
	case CostSecurity:
		return c.SecurityCost
	case CostPrecarriage:
		return c.PrecarriageCost
	case CostCarParking:
		return c.CarParkingCost
	case CostHandling:
		return c.HandlingCost
	case CostDeclaration:
		return c.DeclarationCost
	case CostRegistration:
		return c.RegistrationCost
	}
	return nil
}
