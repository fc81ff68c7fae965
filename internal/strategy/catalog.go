package strategy

import (
	"tariff_parser/internal/patterns"
	"tariff_parser/internal/tariff"
)

// Strategy names as they appear in candidate source_strategy fields
// and detection traces.
const (
	NameAir       = "air_tariff"
	NameFTL       = "ftl_tariff"
	NameSea       = "sea_tariff"
	NameRail      = "rail_tariff"
	NameUniversal = "universal"
)

// Catalog returns the built-in strategies in priority order. The
// returned slice and the strategies it points to are shared and
// read-only.
func Catalog() []*Strategy {
	return []*Strategy{air, ftl, sea, rail, universal}
}

var air = &Strategy{
	Name:      NameAir,
	Transport: tariff.TransportAir,
	Priority:  1,
	Currency:  patterns.CurrencyUSD,
	kind:      KindAir,
	indicators: patterns.MustCompiler([]patterns.Format{
		{Name: "air_words", Pattern: `\b(?:air|airline|mu|d\d+|flight)\b|{BL}(?:авиа|рейс){BR}`},
		{Name: "airport_codes", Pattern: `(?-i:\b(?:HKG|XIY|SVO|PEK|CAN|SHA|CTU|CKG|KMG|XMN|TAO|DLC|TSN|SHE|HGH|NGB|WUH|CSX|CGO)\b)`},
	}, nil),
	prices: patterns.MustCompiler([]patterns.Format{
		{Name: "usd", Pattern: `\b(?P<amount>\d+\.?\d*)\s*(?:(?:USD|\$)\b|доллар(?:ов?)?{BR})`},
		{Name: "rub", Pattern: `\b(?P<amount>\d+\.?\d*)\s*(?:RUB\b|руб(?:ле(?:й)?)?{BR})`},
		{Name: "sd", Pattern: `\b(?P<amount>\d+\.?\d*)\s*SD\b`},
		{Name: "rate_columns", Pattern: `\|\s*(?P<amount>\d+\.?\d*)\s+\d+\.?\s*\d*\s+\d+\.?\s*\d*\s+\d+\.?\d*`},
	}, nil),
	routes: patterns.MustCompiler([]patterns.Format{
		{Name: "code_pair", Pattern: `\b{CODE3}-{CODE3EXT}\b`},
		{Name: "code_arrow", Pattern: `\b{CODE3}{SEP}{CODE3}\b`},
	}, nil),
	extract: patterns.MustCompiler([]patterns.Format{
		// One rate row: code pair, flight/vehicle token, four numeric
		// columns. The first column is the base rate, the rest are
		// weight-break rates.
		{Name: "rate_row", Pattern: `(?P<origin>{CODE3})-(?P<dest>{CODE3EXT})\s+(?P<vehicle>{FLIGHT})(?:\s*\|\s*|\s+)(?P<p1>{AIRNUM})\s+(?P<p2>{AIRNUM})\s+(?P<p3>{AIRNUM})\s+(?P<p4>{AIRNUM})`},
	}, map[string]string{
		// Rate columns tolerate an OCR space after the decimal
		// separator ("5. 50").
		"AIRNUM": `\d+(?:[.,]\s?\d+)?`,
	}),
	vehicles: patterns.MustCompiler([]patterns.Format{
		{Name: "flight_shipment", Pattern: `(?P<vehicle>\d+/\w+)`},
	}, nil),
}

var ftl = &Strategy{
	Name:      NameFTL,
	Transport: tariff.TransportAuto,
	Priority:  2,
	Currency:  patterns.CurrencyUSD,
	kind:      KindFTL,
	indicators: patterns.MustCompiler([]patterns.Format{
		{Name: "truck_words", Pattern: `\b(?:FTL|truck|EXW|FCA|CPT|CIP|DAP|DDP)\b|{BL}(?:грузовик|авто(?:мобиль)?){BR}`},
		{Name: "china_cities", Pattern: `\b(?:Shenzhen|Guangzhou|Shanghai|Beijing|Tianjin|Qingdao|Dalian|Ningbo|Xiamen|Fuzhou|Wenzhou|Yiwu|Hangzhou|Suzhou|Nanjing|Wuxi|Changzhou|Zhenjiang|Yangzhou|Nantong|Taizhou|Lianyungang|Huai'an|Suqian|Xuzhou|Yancheng)\b`},
		{Name: "cny_truck", Pattern: `\b(?:CNY|tilt\s*tautliner|per\s*truck)\b|{BL}(?:юань|за\s*машину){BR}`},
	}, nil),
	prices: patterns.MustCompiler([]patterns.Format{
		{Name: "usd_per_truck", Pattern: `\$\s*(?P<amount>\d+(?:[.,]\d+)?)\s*(?:per\s*truck|за\s*машину)`},
		{Name: "usd_tagged_truck", Pattern: `(?P<amount>\d+(?:[.,]\d+)?)\s*(?:USD|\$)\s*(?:per\s*truck|за\s*машину)`},
		{Name: "exw_lane_usd", Pattern: `EXW\s+[^-]+-[^-]+-\s*\$(?P<amount>\d+(?:[.,]\d+)?)`},
		{Name: "dollars_per_truck", Pattern: `(?P<amount>\d+(?:[.,]\d+)?)\s*доллар(?:ов?)?\s*(?:за\s*машину|per\s*truck)`},
		{Name: "cny", Pattern: `(?P<amount>\d+(?:\s*\d+)?)\s*CNY`},
		{Name: "exw_cny", Pattern: `EXW\s+[^:]+:\s*(?P<amount>\d+(?:\s*\d+)?)\s*CNY`},
	}, nil),
	routes: patterns.MustCompiler([]patterns.Format{
		{Name: "exw_lane", Pattern: `EXW\s+[^-]+-[^-]+-\s*\$`},
		{Name: "dash_lane_usd", Pattern: `[^-]+\s*[-→]\s*[^-]+\s*[-→]\s*\$`},
		{Name: "exw_priced", Pattern: `EXW\s+[^-\n]+?\s*-\s*[^-\n]+?\s*-\s*\$?\d+(?:,\d+)?`},
	}, nil),
	// Formats are in claim order: once a specific shape reads a row, the
	// looser shapes below it never re-read the same span. The transit
	// shape in particular must outrank the free-form dash pair, or a
	// border point gets read as a destination.
	extract: patterns.MustCompiler([]patterns.Format{
		{Name: "exw_usd", Pattern: `EXW\s+(?P<origin>[^-]+?)\s*-\s*(?P<dest>[^-]+?)\s*-\s*\$(?P<price>\d+(?:,\d+)?)`},
		{Name: "exw_cny_transit", Pattern: `EXW\s+(?P<origin>[^-:]+?)-(?P<transit>[^-:]+?)-(?P<dest>[^:]+?):\s*(?P<price>\d+(?:\s*\d+)?)\s*CNY`},
		{Name: "exw_cny_ftl_nl", Pattern: `EXW\s+(?P<origin>[^:\n]+?)[/-](?P<dest>[^:\n]+?):\s*(?P<price>\d+(?:\s*\d+)?)\s*\n\s*CNY/FTL`},
		{Name: "exw_cny_ftl", Pattern: `EXW\s+(?P<origin>[^:\n]+?)[/-](?P<dest>[^:\n]+?):\s*(?P<price>\d+(?:\s*\d+)?)\s*CNY/FTL`},
		{Name: "exw_cny_cbm", Pattern: `EXW\s+(?P<origin>[^:\n]+?)[/-](?P<dest>[^:\n]+?):\s*(?P<price>\d+(?:\s*\d+)?)\s*CNY/\d+cbm`},
		{Name: "exw_cny_nl", Pattern: `EXW\s+(?P<route>[^:\n]+?):\s*(?P<price>\d+(?:\s*\d+)?)\s*\n\s*CNY`},
		{Name: "exw_cny_pair", Pattern: `EXW\s+(?P<origin>[^:\n]+?)-(?P<dest>[^:\n]+?):\s*(?P<price>\d+(?:\s*\d+)?)\s*CNY`},
		{Name: "exw_cny_combined", Pattern: `EXW\s+(?P<route>[^:\n]+?):\s*(?P<price>\d+(?:\s*\d+)?)\s*CNY`},
		{Name: "exw_free", Pattern: `EXW\s+(?P<origin>[^-]+?)\s*-\s*(?P<dest>[^-]+?)\s*-\s*(?P<price>[^-\n]+)`},
	}, nil),
	vehicles: patterns.MustCompiler([]patterns.Format{
		{Name: "truck_body", Pattern: `(?P<vehicle>tilt\s*tautliner|тент[а-яё]*|рефрижератор[а-яё]*|контейнеровоз[а-яё]*)`},
		{Name: "dimensions", Pattern: `(?P<vehicle>\d+\.\d+\*\d+\.\d+\*\d+\.\d+M)`},
	}, nil),
}

var sea = &Strategy{
	Name:      NameSea,
	Transport: tariff.TransportSea,
	Priority:  3,
	Currency:  patterns.CurrencyUSD,
	kind:      KindGeneric,
	indicators: patterns.MustCompiler([]patterns.Format{
		{Name: "sea_words", Pattern: `\b(?:sea|ocean|FCL|LCL|container|ship)\b|{BL}(?:морской|контейнер|судно){BR}`},
		{Name: "sea_ports", Pattern: `\b(?:Shanghai|Ningbo|Qingdao|Tianjin|Dalian|Xiamen|Guangzhou|Shenzhen|Hong Kong|Singapore|Rotterdam|Hamburg|Antwerp|Le Havre|Los Angeles|Long Beach|New York|Savannah|Charleston|Miami|Houston|Seattle|Vancouver|Toronto|Montreal)\b`},
	}, nil),
	prices: patterns.MustCompiler([]patterns.Format{
		{Name: "usd_per_container", Pattern: `\b(?P<amount>\d+(?:[.,]\d+)?)\s*(?:USD|\$)\s*(?:per\s*container|за\s*контейнер)`},
		{Name: "fcl_usd", Pattern: `FCL\s*(?P<amount>\d+(?:[.,]\d+)?)\s*(?:USD|\$)`},
		{Name: "lcl_usd", Pattern: `LCL\s*(?P<amount>\d+(?:[.,]\d+)?)\s*(?:USD|\$)`},
	}, nil),
	routes: patterns.MustCompiler([]patterns.Format{
		{Name: "dash_fcl", Pattern: `(?P<origin>[^-]+)\s*[-→]\s*(?P<dest>[^-]+)\s*(?:FCL|LCL)`},
		{Name: "fcl_lane", Pattern: `FCL\s+(?P<origin>[^-]+)-(?P<dest>[^-]+)`},
	}, nil),
}

var rail = &Strategy{
	Name:      NameRail,
	Transport: tariff.TransportRail,
	Priority:  4,
	Currency:  patterns.CurrencyRUB,
	kind:      KindGeneric,
	indicators: patterns.MustCompiler([]patterns.Format{
		{Name: "rail_words", Pattern: `\b(?:rail|RFCL|FCL)\b|{BL}(?:железная\s*дорога|поезд|вагон|контейнер){BR}`},
		{Name: "ru_cities", Pattern: `\b(?:Moscow|St\.?\s*Petersburg|Novosibirsk|Yekaterinburg|Kazan|Nizhny Novgorod|Chelyabinsk|Samara|Omsk|Rostov|Ufa|Perm|Volgograd|Krasnoyarsk|Saratov|Voronezh|Tolyatti|Krasnodar|Ulyanovsk|Izhevsk|Yaroslavl|Barnaul|Vladivostok|Irkutsk|Khabarovsk|Kemerovo|Ryazan|Astrakhan|Naberezhnye Chelny|Penza|Lipetsk|Kirov|Cheboksary|Tula|Kaliningrad|Kurgan|Ulan-Ude|Stavropol|Sochi|Ivanovo|Bryansk|Tver|Belgorod|Arkhangelsk|Vladimir|Chita|Grozny|Kaluga|Smolensk|Volzhsky|Murmansk|Vladikavkaz|Saransk|Yakutsk|Cherepovets|Vologda|Orjol|Sterlitamak)\b`},
	}, nil),
	prices: patterns.MustCompiler([]patterns.Format{
		{Name: "rub_per_wagon", Pattern: `\b(?P<amount>\d+(?:[.,]\d+)?)\s*(?:RUB|руб(?:ле(?:й)?)?)\s*(?:за\s*вагон|per\s*wagon)`},
		{Name: "rfcl_rub", Pattern: `RFCL\s*(?P<amount>\d+(?:[.,]\d+)?)\s*(?:RUB|руб)`},
		{Name: "fcl_rub", Pattern: `FCL\s*(?P<amount>\d+(?:[.,]\d+)?)\s*(?:RUB|руб)`},
	}, nil),
	routes: patterns.MustCompiler([]patterns.Format{
		{Name: "dash_rfcl", Pattern: `(?P<origin>[^-]+)\s*[-→]\s*(?P<dest>[^-]+)\s*(?:RFCL|FCL)`},
		{Name: "rfcl_lane", Pattern: `RFCL\s+(?P<origin>[^-]+)-(?P<dest>[^-]+)`},
	}, nil),
}

var universal = &Strategy{
	Name:      NameUniversal,
	Transport: tariff.TransportAuto,
	Priority:  5,
	Currency:  patterns.CurrencyUSD,
	kind:      KindGeneric,
	keywords:  true,
	indicators: patterns.MustCompiler([]patterns.Format{
		{Name: "tariff_words", Pattern: `\b(?:tariff|price|cost)\b|{BL}(?:тариф|цена|стоимость){BR}`},
	}, nil),
	prices: patterns.MustCompiler([]patterns.Format{
		{Name: "tagged", Pattern: `\b(?P<amount>\d+(?:[.,]\d+)?)\s*(?:(?:USD|RUB|\$)\b|руб{BR})`},
		{Name: "words", Pattern: `\b(?P<amount>\d+(?:[.,]\d+)?)\s*(?:доллар(?:ов?)?|рубль|рубле(?:й)?){BR}`},
	}, nil),
	routes: patterns.MustCompiler([]patterns.Format{
		{Name: "dash", Pattern: `(?P<origin>[^-]+)\s*[-→]\s*(?P<dest>[^-]+)`},
		{Name: "ot_do", Pattern: `от\s+(?P<origin>[^-]+)\s+до\s+(?P<dest>[^-]+)`},
		{Name: "from_to", Pattern: `from\s+(?P<origin>[^-]+)\s+to\s+(?P<dest>[^-]+)`},
	}, nil),
}
