package tariff

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseTransport(t *testing.T) {
	tests := []struct {
		input string
		want  TransportType
		ok    bool
	}{
		{"air", TransportAir, true},
		{"  SEA ", TransportSea, true},
		{"Rail", TransportRail, true},
		{"multimodal", TransportMultimodal, true},
		{"auto", TransportAuto, true},
		{"truck", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseTransport(tt.input)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseTransport(%q) = %q, %v; want %q, %v", tt.input, got, ok, tt.want, tt.ok)
		}
	}
}

func TestCandidateJSONNulls(t *testing.T) {
	usd := 8.9
	c := Candidate{
		TransportType:   TransportAir,
		Basis:           "EXW",
		OriginCity:      "Hong Kong",
		OriginCountry:   "China",
		DestinationCity: "Moscow",
		PriceUSD:        &usd,
		SourceStrategy:  "air_tariff",
	}

	data, err := json.Marshal(&c)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(data)

	if !strings.Contains(s, `"price_usd":8.9`) {
		t.Errorf("expected price_usd 8.9 in %s", s)
	}
	if !strings.Contains(s, `"price_rub":null`) {
		t.Errorf("expected explicit null price_rub in %s", s)
	}
	if !strings.Contains(s, `"transit_time_days":null`) {
		t.Errorf("expected explicit null transit_time_days in %s", s)
	}
	if strings.Contains(s, `"supplier"`) {
		t.Errorf("empty supplier should be omitted, got %s", s)
	}
}

func TestCandidateCosts(t *testing.T) {
	var c Candidate

	c.SetCost(CostCarParking, 150)
	c.SetCost("fuel_surcharge", 99) // not a known key

	if got := c.Cost(CostCarParking); got == nil || *got != 150 {
		t.Errorf("Cost(car_parking) = %v, want 150", got)
	}
	for _, key := range CostKeys {
		if key == CostCarParking {
			continue
		}
		if c.Cost(key) != nil {
			t.Errorf("Cost(%s) should be unset", key)
		}
	}
}

func TestCandidateHasPriceAndRoute(t *testing.T) {
	var c Candidate
	if c.HasPrice() || c.HasRoute() {
		t.Error("zero candidate should have neither price nor route")
	}

	rub := 15000.0
	c.PriceRUB = &rub
	if !c.HasPrice() {
		t.Error("expected HasPrice after setting PriceRUB")
	}

	c.OriginCity = "Moscow"
	if c.HasRoute() {
		t.Error("route needs both endpoints")
	}
	c.DestinationCity = "St. Petersburg"
	if !c.HasRoute() {
		t.Error("expected HasRoute with both endpoints set")
	}
}
