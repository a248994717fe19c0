package scraper

import (
	"encoding/json"
	"fmt"
	"os"
)

// SelectorConfig holds the CSS selectors adapters use to locate data in
// store pages. Stores change markup often; selectors live in JSON so they
// can be updated without touching the extraction code.
type SelectorConfig struct {
	BikeComponents BikeComponentsSelectors `json:"bike_components"`
	ChainReaction  ChainReactionSelectors  `json:"chain_reaction"`
	Starbike       StarbikeSelectors       `json:"starbike"`
	BikeDiscount   BikeDiscountSelectors   `json:"bike_discount"`
	Bike24         Bike24Selectors         `json:"bike24"`
}

type BikeComponentsSelectors struct {
	LDJSON string `json:"ld_json"` // e.g., script[type="application/ld+json"]
}

type ChainReactionSelectors struct {
	PageData string `json:"page_data"`
}

type StarbikeSelectors struct {
	Title       string `json:"title"`
	VariantName string `json:"variant_name"`
	Eta         string `json:"eta"`
	EtaMissing  string `json:"eta_missing"` // class marking an out of stock ETA
	Price       string `json:"price"`
}

type BikeDiscountSelectors struct {
	OptionInput  string `json:"option_input"`
	Availability string `json:"availability"`
}

type Bike24Selectors struct {
	AddToCart string `json:"add_to_cart"`
}

// LoadSelectors loads the selector configuration from the specified JSON file.
func LoadSelectors(path string) (SelectorConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SelectorConfig{}, fmt.Errorf("failed to read selector config file: %w", err)
	}

	return LoadSelectorsFromBytes(data)
}

// LoadSelectorsFromBytes parses selector configuration from raw JSON bytes.
// Missing entries fall back to the defaults.
func LoadSelectorsFromBytes(data []byte) (SelectorConfig, error) {
	config := DefaultSelectors()
	if err := json.Unmarshal(data, &config); err != nil {
		return SelectorConfig{}, fmt.Errorf("failed to parse selector config JSON: %w", err)
	}

	return config, nil
}

// DefaultSelectors returns the fallback configuration if no JSON file is loaded.
func DefaultSelectors() SelectorConfig {
	return SelectorConfig{
		BikeComponents: BikeComponentsSelectors{
			LDJSON: `script[type="application/ld+json"]`,
		},
		ChainReaction: ChainReactionSelectors{
			PageData: `script[type="application/json"]`,
		},
		Starbike: StarbikeSelectors{
			Title:       "title",
			VariantName: "a[meta-id]",
			Eta:         "span.dropdownbox-eta",
			EtaMissing:  "uk-text-danger",
			Price:       "span.dropdownbox-price",
		},
		BikeDiscount: BikeDiscountSelectors{
			OptionInput:  "input.option--input",
			Availability: `link[itemprop="availability"]`,
		},
		Bike24: Bike24Selectors{
			AddToCart: "div#add-to-cart",
		},
	}
}
