package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pauljones0/skuwatch/internal/models"
	"github.com/pauljones0/skuwatch/internal/util"
)

// Chain Reaction prices by the country and currency cookies.
var crcHeaders = map[string]string{
	"Cookie": "countryCode=KZ; languageCode=en; currencyCode=USD",
}

type crcPageData struct {
	Props struct {
		PageProps struct {
			RenderGraph struct {
				Page struct {
					Components struct {
						Body []crcProduct `json:"body"`
					} `json:"components"`
				} `json:"page"`
			} `json:"renderGraph"`
		} `json:"pageProps"`
	} `json:"props"`
}

type crcProduct struct {
	Key                  string `json:"key"`
	Name                 string `json:"name"`
	FilterableAttributes []struct {
		Name string `json:"name"`
	} `json:"filterableAttributes"`
	Variants []crcVariant `json:"variants"`
}

type crcVariant struct {
	SKU        string `json:"sku"`
	Attributes []struct {
		Name  string          `json:"name"`
		Value json.RawMessage `json:"value"`
	} `json:"attributes"`
	Price struct {
		Current struct {
			CentAmount   int64  `json:"centAmount"`
			CurrencyCode string `json:"currencyCode"`
		} `json:"current"`
	} `json:"price"`
	StockLevel struct {
		InStock bool `json:"inStock"`
	} `json:"stockLevel"`
}

// label joins the variant's filterable attribute values, e.g. "Black, 29 inch".
func (v crcVariant) label(filterable []string) string {
	values := make(map[string]json.RawMessage, len(v.Attributes))
	for _, a := range v.Attributes {
		values[a.Name] = a.Value
	}
	var parts []string
	for _, name := range filterable {
		raw, ok := values[name]
		if !ok || len(raw) == 0 {
			continue
		}
		var labelled struct {
			Label string `json:"label"`
		}
		if err := json.Unmarshal(raw, &labelled); err == nil && labelled.Label != "" {
			parts = append(parts, labelled.Label)
			continue
		}
		var plain flexString
		if err := json.Unmarshal(raw, &plain); err == nil && plain != "" {
			parts = append(parts, plain.String())
		}
	}
	return strings.Join(parts, ", ")
}

// NewChainReaction returns the adapter for chainreactioncycles.com, which
// embeds its product graph as page JSON.
func (c *Client) NewChainReaction() Adapter {
	return newStoreAdapter(models.StoreChainReaction, c.validator(), c.parseChainReaction)
}

func (c *Client) parseChainReaction(ctx context.Context, url string) (models.VariantSet, string, error) {
	doc, _, finalURL, err := c.fetchHTMLContent(ctx, url, crcHeaders)
	if err != nil {
		return nil, finalURL, err
	}

	script := doc.Find(c.selectors.ChainReaction.PageData).First()
	if script.Length() == 0 {
		return nil, finalURL, fmt.Errorf("no page data found on %s", finalURL)
	}

	var data crcPageData
	if err := json.Unmarshal([]byte(script.Text()), &data); err != nil {
		return nil, finalURL, fmt.Errorf("failed to decode page data: %w", err)
	}
	body := data.Props.PageProps.RenderGraph.Page.Components.Body
	if len(body) == 0 {
		return nil, finalURL, fmt.Errorf("page data of %s has no product component", finalURL)
	}
	product := body[0]

	filterable := make([]string, 0, len(product.FilterableAttributes))
	for _, a := range product.FilterableAttributes {
		filterable = append(filterable, a.Name)
	}

	variants := make(models.VariantSet, len(product.Variants))
	for _, v := range product.Variants {
		id := util.ShortID(v.SKU)
		variants[id] = models.Variant{
			Store:     models.StoreChainReaction,
			ProductID: product.Key,
			VariantID: id,
			Name:      cleanText(product.Name),
			Label:     v.label(filterable),
			Price:     v.Price.Current.CentAmount,
			Currency:  strings.ToUpper(v.Price.Current.CurrencyCode),
			InStock:   v.StockLevel.InStock,
			URL:       finalURL,
		}
	}
	return variants, finalURL, nil
}
