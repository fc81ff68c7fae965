package patterns

import (
	"strings"
	"testing"

	"tariff_parser/internal/tariff"
)

func TestFindPriceHits(t *testing.T) {
	tests := []struct {
		name         string
		text         string
		wantCurrency string
		wantValue    float64
		wantTier     int
	}{
		{
			name:         "dollar symbol before amount",
			text:         "EXW Shenzhen - Moscow - $9500 per truck",
			wantCurrency: CurrencyUSD,
			wantValue:    9500,
			wantTier:     TierCode,
		},
		{
			name:         "ISO code after amount",
			text:         "ставка 3500 USD за контейнер",
			wantCurrency: CurrencyUSD,
			wantValue:    3500,
			wantTier:     TierCode,
		},
		{
			name:         "russian currency word",
			text:         "Москва - Санкт-Петербург 15000 руб",
			wantCurrency: CurrencyRUB,
			wantValue:    15000,
			wantTier:     TierWord,
		},
		{
			name:         "yuan with spaced thousands",
			text:         "полная ставка 78 600 юаней",
			wantCurrency: CurrencyCNY,
			wantValue:    78600,
			wantTier:     TierWord,
		},
		{
			name:         "RMB code",
			text:         "freight 4500 RMB",
			wantCurrency: CurrencyCNY,
			wantValue:    4500,
			wantTier:     TierCode,
		},
		{
			name:         "decimal comma",
			text:         "234,56 USD",
			wantCurrency: CurrencyUSD,
			wantValue:    234.56,
			wantTier:     TierCode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits := FindPriceHits(tt.text)
			if len(hits) == 0 {
				t.Fatal("FindPriceHits() = none, want one")
			}
			h := hits[0]
			if h.Currency != tt.wantCurrency || h.Value != tt.wantValue || h.Tier != tt.wantTier {
				t.Errorf("hit = {%s %v tier %d}, want {%s %v tier %d}",
					h.Currency, h.Value, h.Tier, tt.wantCurrency, tt.wantValue, tt.wantTier)
			}
		})
	}
}

func TestFindPriceHitsOrdered(t *testing.T) {
	hits := FindPriceHits("сбор 100 USD, доставка 2000 USD, страховка 50 USD")
	if len(hits) != 3 {
		t.Fatalf("FindPriceHits() returned %d hits, want 3", len(hits))
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Pos <= hits[i-1].Pos {
			t.Errorf("hit[%d] at %d not after hit[%d] at %d", i, hits[i].Pos, i-1, hits[i-1].Pos)
		}
	}
}

func TestFirstPerCurrency(t *testing.T) {
	t.Run("first hit wins within a tier", func(t *testing.T) {
		set := FirstPerCurrency(FindPriceHits("ставка 500 USD, надбавка 700 USD"))
		if set.USD == nil || *set.USD != 500 {
			t.Errorf("USD = %v, want 500", set.USD)
		}
	})

	t.Run("code marker outranks earlier word marker", func(t *testing.T) {
		set := FirstPerCurrency(FindPriceHits("примерно 100 долларов, итог 200 USD"))
		if set.USD == nil || *set.USD != 200 {
			t.Errorf("USD = %v, want 200", set.USD)
		}
	})

	t.Run("currencies are independent", func(t *testing.T) {
		set := FirstPerCurrency(FindPriceHits("фрахт $300, сборы 15000 руб, доплата 2000 юаней"))
		if set.USD == nil || *set.USD != 300 {
			t.Errorf("USD = %v, want 300", set.USD)
		}
		if set.RUB == nil || *set.RUB != 15000 {
			t.Errorf("RUB = %v, want 15000", set.RUB)
		}
		if set.CNY == nil || *set.CNY != 2000 {
			t.Errorf("CNY = %v, want 2000", set.CNY)
		}
	})
}

func TestLargestPerCurrency(t *testing.T) {
	set := LargestPerCurrency(FindPriceHits("сбор 500 USD, фрахт 1200 USD, охрана 300 руб"))
	if set.USD == nil || *set.USD != 1200 {
		t.Errorf("USD = %v, want 1200", set.USD)
	}
	if set.RUB == nil || *set.RUB != 300 {
		t.Errorf("RUB = %v, want 300", set.RUB)
	}
	if set.CNY != nil {
		t.Errorf("CNY = %v, want nil", *set.CNY)
	}
}

func TestPriceSetMerge(t *testing.T) {
	usd := 9500.0
	rub := 15000.0
	set := PriceSet{USD: &usd}
	set.Merge(PriceSet{USD: ptr(1.0), RUB: &rub})

	if *set.USD != 9500 {
		t.Errorf("Merge overwrote USD: got %v", *set.USD)
	}
	if set.RUB == nil || *set.RUB != 15000 {
		t.Errorf("Merge did not fill RUB: got %v", set.RUB)
	}
}

func TestPricesNear(t *testing.T) {
	t.Run("price inside window", func(t *testing.T) {
		text := "Shenzhen - Moscow, срок 20 дней, ставка $9500 за машину"
		set := PricesNear(text, 0, 17, 200)
		if set.USD == nil || *set.USD != 9500 {
			t.Errorf("USD = %v, want 9500", set.USD)
		}
	})

	t.Run("price beyond window ignored", func(t *testing.T) {
		text := "Shenzhen - Moscow" + strings.Repeat(" условия", 40) + " $9500"
		set := PricesNear(text, 0, 17, 200)
		if set.USD != nil {
			t.Errorf("USD = %v, want nil", *set.USD)
		}
	})

	t.Run("window counts characters not bytes", func(t *testing.T) {
		// 150 Cyrillic characters of filler are 300 bytes; the price must
		// still fall inside a 200-character window.
		text := "Москва - Пекин" + strings.Repeat("а", 150) + " 15000 руб"
		set := PricesNear(text, 0, len("Москва - Пекин"), 200)
		if set.RUB == nil || *set.RUB != 15000 {
			t.Errorf("RUB = %v, want 15000", set.RUB)
		}
	})
}

func TestFindTransitDays(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		want   int
		wantOK bool
	}{
		{"russian plural", "срок доставки 12 дней", 12, true},
		{"range averages", "транзит 25-30 дней", 27, true},
		{"english", "transit time 5 days", 5, true},
		{"sutki", "доставка за 7 суток", 7, true},
		{"working days", "10 рабочих дней", 10, true},
		{"short form", "18 дн от склада", 18, true},
		{"no duration", "ставка 9500 USD", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FindTransitDays(tt.text)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("FindTransitDays(%q) = (%d, %v), want (%d, %v)", tt.text, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestFindBasis(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"exw code", "EXW Shenzhen/Guangzhou - Moscow - $9500", "EXW"},
		{"exw lower case", "условия exw склад поставщика", "EXW"},
		{"ex works phrase", "price ex works Ningbo", "EXW"},
		{"franco zavod", "франко завод, г. Чэнду", "EXW"},
		{"fob", "FOB Shanghai to Vostochny", "FOB"},
		{"fob phrase", "free on board terms", "FOB"},
		{"cif", "CIF St. Petersburg", "CIF"},
		{"ddp", "доставка DDP Москва", "DDP"},
		{"code inside word ignored", "scifi shipment manifest", ""},
		{"none", "Москва - Пекин 15000 руб", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FindBasis(tt.text); got != tt.want {
				t.Errorf("FindBasis(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestFindValidity(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"russian valid until", "тариф действителен до 15.04.2024", "2024-04-15"},
		{"english valid until", "rates valid until 01/06/2024", "2024-06-01"},
		{"until marker", "до 20.12.2024 включительно", "2024-12-20"},
		{"unparseable date passes through", "действительно до 45.13.2024", "45.13.2024"},
		{"no date", "ставка 9500 USD", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FindValidity(tt.text); got != tt.want {
				t.Errorf("FindValidity(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestFindCosts(t *testing.T) {
	text := `Доп. расходы:
СВХ: 3500
терминальная обработка: 120
автовывоз 2500
охрана - 1500
CAR PARKING: SD 30
ECLARATION FEE: SD 55
registration fee USD 40`

	costs := FindCosts(text)

	want := map[string]float64{
		tariff.CostCBX:              3500,
		tariff.CostTerminalHandling: 120,
		tariff.CostAutoPickup:       2500,
		tariff.CostSecurity:         1500,
		tariff.CostCarParking:       30,
		tariff.CostDeclaration:      55,
		tariff.CostRegistration:     40,
	}

	for key, wantValue := range want {
		if got, ok := costs[key]; !ok || got != wantValue {
			t.Errorf("costs[%s] = %v (present %v), want %v", key, got, ok, wantValue)
		}
	}

	// "терминальная обработка" must not leak into the plain handling fee.
	if _, ok := costs[tariff.CostHandling]; ok {
		t.Errorf("costs[%s] present, want absent", tariff.CostHandling)
	}
}

func TestFindCostsUnknownNamesDropped(t *testing.T) {
	costs := FindCosts("fuel surcharge: 250, storage: 80")
	if len(costs) != 0 {
		t.Errorf("FindCosts() = %v, want empty", costs)
	}
}

func TestSplitTableRow(t *testing.T) {
	tests := []struct {
		name string
		line string
		want []string
	}{
		{"three cells", "| Москва | Пекин | 3500 USD |", []string{"Москва", "Пекин", "3500 USD"}},
		{"no pipes", "Москва - Пекин 3500 USD", nil},
		{"blank cells dropped", "|| Shanghai |  | Moscow |", []string{"Shanghai", "Moscow"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitTableRow(tt.line)
			if len(got) != len(tt.want) {
				t.Fatalf("SplitTableRow(%q) = %v, want %v", tt.line, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("cell[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func ptr(v float64) *float64 { return &v }
