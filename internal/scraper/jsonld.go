package scraper

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// flexString accepts JSON strings, numbers and booleans. Stores are not
// consistent about quoting SKUs and flags.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(string(data))
	return nil
}

func (f flexString) String() string { return string(f) }

// flexFloat accepts numbers and numeric strings.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(data); err != nil {
		return err
	}
	if s == "" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(s)), 64)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// JSONLDNode is a schema.org Product or ProductGroup as embedded in product pages.
type JSONLDNode struct {
	Type           flexString      `json:"@type"`
	SKU            flexString      `json:"sku"`
	ProductGroupID flexString      `json:"productGroupID"`
	Name           string          `json:"name"`
	Brand          JSONLDBrand     `json:"brand"`
	Offers         JSONLDOffers    `json:"offers"`
	HasVariant     []JSONLDVariant `json:"hasVariant"`
}

type JSONLDBrand struct {
	Name string `json:"name"`
}

type JSONLDVariant struct {
	SKU    flexString  `json:"sku"`
	Name   string      `json:"name"`
	Offers JSONLDOffer `json:"offers"`
}

type JSONLDOffer struct {
	SKU                flexString       `json:"sku"`
	Name               string           `json:"name"`
	Availability       string           `json:"availability"`
	Price              flexFloat        `json:"price"`
	PriceCurrency      string           `json:"priceCurrency"`
	PriceSpecification JSONLDPriceSpecs `json:"priceSpecification"`
}

// price returns the first price specification, falling back to the
// offer's own price fields.
func (o JSONLDOffer) price() JSONLDPriceSpec {
	if len(o.PriceSpecification) > 0 {
		return o.PriceSpecification[0]
	}
	return JSONLDPriceSpec{Price: o.Price, PriceCurrency: o.PriceCurrency}
}

type JSONLDPriceSpec struct {
	Price                 flexFloat  `json:"price"`
	PriceCurrency         string     `json:"priceCurrency"`
	ValueAddedTaxIncluded flexString `json:"valueAddedTaxIncluded"`
}

// JSONLDOffers accepts a single offer object or an array of offers.
type JSONLDOffers []JSONLDOffer

func (o *JSONLDOffers) UnmarshalJSON(data []byte) error {
	return unmarshalOneOrMany(data, (*[]JSONLDOffer)(o))
}

// JSONLDPriceSpecs accepts a single price specification or an array.
type JSONLDPriceSpecs []JSONLDPriceSpec

func (p *JSONLDPriceSpecs) UnmarshalJSON(data []byte) error {
	return unmarshalOneOrMany(data, (*[]JSONLDPriceSpec)(p))
}

func unmarshalOneOrMany[T any](data []byte, out *[]T) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*out = nil
		return nil
	}
	if data[0] == '[' {
		return json.Unmarshal(data, out)
	}
	var one T
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	*out = []T{one}
	return nil
}

// decodeJSONLDNodes returns the nodes of a JSON-LD block, which may be a
// single object, an array or an object with @graph.
func decodeJSONLDNodes(raw string) ([]JSONLDNode, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "[") {
		var nodes []JSONLDNode
		err := json.Unmarshal([]byte(raw), &nodes)
		return nodes, err
	}
	var graph struct {
		Graph []JSONLDNode `json:"@graph"`
	}
	if err := json.Unmarshal([]byte(raw), &graph); err == nil && len(graph.Graph) > 0 {
		return graph.Graph, nil
	}
	var node JSONLDNode
	if err := json.Unmarshal([]byte(raw), &node); err != nil {
		return nil, err
	}
	return []JSONLDNode{node}, nil
}
