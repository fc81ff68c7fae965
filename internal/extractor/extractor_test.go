package extractor

import (
	"reflect"
	"strings"
	"testing"

	"tariff_parser/internal/tariff"
)

func testEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return e
}

func TestExtractTruckLane(t *testing.T) {
	e := testEngine(t, Config{})
	got := e.Extract("EXW Shenzhen/Guangzhou - Moscow - $9500 per truck", Options{
		TransportHint: "auto",
		Supplier:      "ACME Logistics",
	})

	if len(got) != 2 {
		t.Fatalf("Extract() returned %d candidates, want 2: %+v", len(got), got)
	}
	for i, origin := range []string{"Shenzhen", "Guangzhou"} {
		c := got[i]
		if c.OriginCity != origin || c.DestinationCity != "Moscow" {
			t.Errorf("candidate %d route = %s -> %s, want %s -> Moscow", i, c.OriginCity, c.DestinationCity, origin)
		}
		if c.PriceUSD == nil || *c.PriceUSD != 9500 {
			t.Errorf("candidate %d price_usd = %v, want 9500", i, c.PriceUSD)
		}
		if c.Basis != "EXW" {
			t.Errorf("candidate %d basis = %q, want EXW", i, c.Basis)
		}
		if c.TransportType != tariff.TransportAuto {
			t.Errorf("candidate %d transport = %s, want auto", i, c.TransportType)
		}
		if c.SourceStrategy != "ftl_tariff" {
			t.Errorf("candidate %d strategy = %q, want ftl_tariff", i, c.SourceStrategy)
		}
		if c.Supplier != "ACME Logistics" {
			t.Errorf("candidate %d supplier = %q, want ACME Logistics", i, c.Supplier)
		}
	}
}

func TestExtractAirHintBypassesDetection(t *testing.T) {
	e := testEngine(t, Config{})
	got := e.Extract("HKG-PEK D1357 8.90 5.50 4.85 4.57", Options{TransportHint: "air"})

	if len(got) != 1 {
		t.Fatalf("Extract() returned %d candidates, want 1: %+v", len(got), got)
	}
	c := got[0]
	if c.OriginCity != "Hong Kong" || c.DestinationCity != "Beijing" {
		t.Errorf("route = %s -> %s, want Hong Kong -> Beijing", c.OriginCity, c.DestinationCity)
	}
	if c.PriceUSD == nil || *c.PriceUSD != 8.9 {
		t.Errorf("price_usd = %v, want 8.9", c.PriceUSD)
	}
	if c.TransportType != tariff.TransportAir {
		t.Errorf("transport = %s, want air", c.TransportType)
	}
	if c.VehicleType == nil || *c.VehicleType != "D1357" {
		t.Errorf("vehicle_type = %v, want D1357", c.VehicleType)
	}
}

func TestExtractEmptyText(t *testing.T) {
	e := testEngine(t, Config{})
	for _, text := range []string{"", "   ", "\n\t \n"} {
		if got := e.Extract(text, Options{}); len(got) != 0 {
			t.Errorf("Extract(%q) returned %d candidates, want 0", text, len(got))
		}
	}
}

func TestExtractUniversalFallback(t *testing.T) {
	e := testEngine(t, Config{})
	got := e.Extract("Москва - Санкт-Петербург 15000 руб", Options{})

	if len(got) != 1 {
		t.Fatalf("Extract() returned %d candidates, want 1: %+v", len(got), got)
	}
	c := got[0]
	if c.OriginCity != "Moscow" || c.DestinationCity != "St. Petersburg" {
		t.Errorf("route = %s -> %s, want Moscow -> St. Petersburg", c.OriginCity, c.DestinationCity)
	}
	if c.PriceRUB == nil || *c.PriceRUB != 15000 {
		t.Errorf("price_rub = %v, want 15000", c.PriceRUB)
	}
	if c.PriceUSD != nil {
		t.Errorf("price_usd = %v, want nil", *c.PriceUSD)
	}
	if c.SourceStrategy != "universal" {
		t.Errorf("strategy = %q, want universal", c.SourceStrategy)
	}
	if c.TransportType != tariff.TransportAuto {
		t.Errorf("transport = %s, want auto", c.TransportType)
	}
}

func TestExtractPricelessTextYieldsNothing(t *testing.T) {
	e := testEngine(t, Config{})
	if got := e.Extract("цена: abc", Options{}); len(got) != 0 {
		t.Errorf("Extract() returned %d candidates, want 0: %+v", len(got), got)
	}
}

func TestExtractRouteWithoutPriceKept(t *testing.T) {
	e := testEngine(t, Config{})
	got := e.Extract("Ningbo - Rotterdam FCL\nцена: abc", Options{})

	if len(got) != 1 {
		t.Fatalf("Extract() returned %d candidates, want 1: %+v", len(got), got)
	}
	c := got[0]
	if c.OriginCity != "Ningbo" || c.DestinationCity != "Rotterdam" {
		t.Errorf("route = %s -> %s, want Ningbo -> Rotterdam", c.OriginCity, c.DestinationCity)
	}
	if c.PriceUSD != nil || c.PriceRUB != nil || c.PriceCNY != nil {
		t.Errorf("prices = %v/%v/%v, want all nil", c.PriceUSD, c.PriceRUB, c.PriceCNY)
	}
}

func TestExtractUnknownHintFallsBackToDetection(t *testing.T) {
	e := testEngine(t, Config{})
	got := e.Extract("Москва - Санкт-Петербург 15000 руб", Options{TransportHint: "hovercraft"})

	if len(got) != 1 {
		t.Fatalf("Extract() returned %d candidates, want 1", len(got))
	}
	if got[0].SourceStrategy != "universal" {
		t.Errorf("strategy = %q, want universal", got[0].SourceStrategy)
	}
}

func TestExtractMultimodalHint(t *testing.T) {
	e := testEngine(t, Config{})
	got := e.Extract("Гуанчжоу склад, далее Москва и Минск, итого 2500 USD", Options{TransportHint: "multimodal"})

	if len(got) != 2 {
		t.Fatalf("Extract() returned %d candidates, want 2: %+v", len(got), got)
	}
	for _, c := range got {
		if c.TransportType != tariff.TransportMultimodal {
			t.Errorf("transport = %s, want multimodal", c.TransportType)
		}
		if c.SourceStrategy != "universal" {
			t.Errorf("strategy = %q, want universal", c.SourceStrategy)
		}
		if c.PriceUSD == nil || *c.PriceUSD != 2500 {
			t.Errorf("price_usd = %v, want 2500", c.PriceUSD)
		}
	}
	if got[0].DestinationCity != "Moscow" || got[1].DestinationCity != "Minsk" {
		t.Errorf("destinations = %s, %s, want Moscow, Minsk", got[0].DestinationCity, got[1].DestinationCity)
	}
}

func TestExtractDocumentContext(t *testing.T) {
	e := testEngine(t, Config{})
	text := "Ningbo - Rotterdam FCL 2500 USD per container\n" +
		"транзит 28 дней\n" +
		"действительно до 31.12.2025\n" +
		"terminal handling 150"

	got := e.Extract(text, Options{})
	if len(got) != 1 {
		t.Fatalf("Extract() returned %d candidates, want 1: %+v", len(got), got)
	}
	c := got[0]
	if c.OriginCity != "Ningbo" || c.DestinationCity != "Rotterdam" {
		t.Errorf("route = %s -> %s, want Ningbo -> Rotterdam", c.OriginCity, c.DestinationCity)
	}
	if c.TransportType != tariff.TransportSea {
		t.Errorf("transport = %s, want sea", c.TransportType)
	}
	if c.PriceUSD == nil || *c.PriceUSD != 2500 {
		t.Errorf("price_usd = %v, want 2500", c.PriceUSD)
	}
	if c.TransitTimeDays == nil || *c.TransitTimeDays != 28 {
		t.Errorf("transit_time_days = %v, want 28", c.TransitTimeDays)
	}
	if c.ValidityDate == nil || *c.ValidityDate != "2025-12-31" {
		t.Errorf("validity_date = %v, want 2025-12-31", c.ValidityDate)
	}
	if c.TerminalHandlingCost == nil || *c.TerminalHandlingCost != 150 {
		t.Errorf("terminal_handling_cost = %v, want 150", c.TerminalHandlingCost)
	}
	if c.HandlingCost != nil {
		t.Errorf("handling_cost = %v, want nil (span already claimed)", *c.HandlingCost)
	}
}

func TestExtractCandidateCap(t *testing.T) {
	e := testEngine(t, Config{MaxCandidates: 1})
	got := e.Extract("EXW Shenzhen/Guangzhou - Moscow - $9500 per truck", Options{})

	if len(got) != 1 {
		t.Fatalf("Extract() returned %d candidates, want 1", len(got))
	}
	if got[0].OriginCity != "Shenzhen" {
		t.Errorf("kept candidate origin = %s, want Shenzhen (document order)", got[0].OriginCity)
	}
}

func TestExtractTruncatesLongText(t *testing.T) {
	// The limit lands mid-rune; the cut must stay on a boundary and the
	// engine must not panic on what remains.
	e := testEngine(t, Config{MaxTextLen: 11})
	got := e.Extract("Москва - Санкт-Петербург 15000 руб", Options{})
	if len(got) != 0 {
		t.Errorf("Extract() returned %d candidates from a truncated stub, want 0", len(got))
	}
}

func TestExtractDeterministic(t *testing.T) {
	e := testEngine(t, Config{})
	text := "EXW Shenzhen/Guangzhou - Moscow - $9500 per truck, тент\nEXW Yiwu - Moscow - $11000 per truck"

	first := e.Extract(text, Options{})
	for i := 0; i < 5; i++ {
		if again := e.Extract(text, Options{}); !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs:\n%+v\nvs\n%+v", i, first, again)
		}
	}
	if len(first) != 3 {
		t.Errorf("Extract() returned %d candidates, want 3", len(first))
	}
}

func TestDetectTrace(t *testing.T) {
	e := testEngine(t, Config{})
	best, traces := e.Detect("EXW Shenzhen - Moscow - $9500 per truck")
	if best.Name != "ftl_tariff" {
		t.Errorf("Detect() = %s, want ftl_tariff", best.Name)
	}
	if len(traces) != 5 {
		t.Fatalf("got %d traces, want 5", len(traces))
	}
	var selected int
	for _, tr := range traces {
		if tr.Selected {
			selected++
		}
	}
	if selected != 1 {
		t.Errorf("%d traces selected, want 1", selected)
	}
}

func TestNewRejectsBadCityTable(t *testing.T) {
	_, err := New(Config{CityTablePath: "testdata/does-not-exist.yaml"}, nil)
	if err == nil {
		t.Fatal("New() with a missing city table succeeded, want error")
	}
	if !strings.Contains(err.Error(), "city table") {
		t.Errorf("error %q does not name the city table", err)
	}
}
