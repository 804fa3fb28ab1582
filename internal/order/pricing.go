package order

import "fmt"

const (
	DefaultBasePriceCents = 2999
	DefaultCurrency       = "usd"
	DefaultProductName    = "Custom Prompt Shirt"
)

// PriceTable prices a shirt as a flat base plus optional per-size and
// per-color surcharges. Missing entries cost nothing extra.
type PriceTable struct {
	BaseCents      int64                `yaml:"base_cents"`
	Currency       string               `yaml:"currency"`
	SizeSurcharge  map[ShirtSize]int64  `yaml:"size_surcharge"`
	ColorSurcharge map[ShirtColor]int64 `yaml:"color_surcharge"`
}

func DefaultPriceTable() PriceTable {
	return PriceTable{
		BaseCents: DefaultBasePriceCents,
		Currency:  DefaultCurrency,
	}
}

func (p PriceTable) Amount(color ShirtColor, size ShirtSize) int64 {
	return p.BaseCents + p.SizeSurcharge[size] + p.ColorSurcharge[color]
}

func (p PriceTable) Validate() error {
	if p.BaseCents <= 0 {
		return fmt.Errorf("price table: base price must be positive, got %d", p.BaseCents)
	}
	if p.Currency == "" {
		return fmt.Errorf("price table: currency is required")
	}
	for size, cents := range p.SizeSurcharge {
		if cents < 0 {
			return fmt.Errorf("price table: negative surcharge for size %s", size)
		}
	}
	for color, cents := range p.ColorSurcharge {
		if cents < 0 {
			return fmt.Errorf("price table: negative surcharge for color %s", color)
		}
	}
	return nil
}

func productDescription(prompt string) string {
	return `T-shirt with prompt: "` + prompt + `"`
}
