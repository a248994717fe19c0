package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/pauljones0/skuwatch/internal/models"
	"github.com/pauljones0/skuwatch/internal/util"
)

const (
	tradeinnAPI = "https://dc.tradeinn.com"
	// tradeinnCountry selects the price list; prices for it are quoted in RUB.
	tradeinnCountry  = 164
	tradeinnCurrency = "RUB"
)

// Tradeinn product paths look like /{shop}/{lang}/{slug}/{id}/p.
var tradeinnPath = regexp.MustCompile(`^/([^/]+)/([^/]+)(/\S+/)(\d+)/p`)

type tradeinnDoc struct {
	Source struct {
		Brand string `json:"marca"`
		Model struct {
			Eng string `json:"eng"`
		} `json:"model"`
		Products []struct {
			ID      flexString       `json:"id_producte"`
			Size    string           `json:"talla"`
			Size2   string           `json:"talla2"`
			Color   string           `json:"color"`
			Sellers []tradeinnSeller `json:"sellers"`
		} `json:"productes"`
	} `json:"_source"`
}

type tradeinnSeller struct {
	Prices []struct {
		Country int       `json:"id_pais"`
		Price   flexFloat `json:"precio"`
	} `json:"precios_paises"`
}

// NewTradeinn returns the adapter for tradeinn.com. The product page only
// resolves the product ID; prices come from the shop's JSON catalog API.
func (c *Client) NewTradeinn() Adapter {
	return newStoreAdapter(models.StoreTradeinn, c.validator(), c.parseTradeinn)
}

// WithTradeinnAPI points the tradeinn adapter at another catalog endpoint.
func (c *Client) WithTradeinnAPI(base string) *Client {
	c.tradeinnAPI = base
	return c
}

func (c *Client) parseTradeinn(ctx context.Context, rawURL string) (models.VariantSet, string, error) {
	headers := map[string]string{"Cookie": "id_pais=" + strconv.Itoa(tradeinnCountry)}
	_, resolved, err := c.fetchBody(ctx, rawURL, headers)
	if err != nil {
		return nil, resolved, err
	}

	u, err := url.Parse(resolved)
	if err != nil {
		return nil, resolved, err
	}
	m := tradeinnPath.FindStringSubmatch(u.Path)
	if m == nil {
		return nil, resolved, fmt.Errorf("unrecognized tradeinn product path %s", u.Path)
	}
	productID := m[4]
	canonical := u.Scheme + "://" + u.Host + "/bikeinn/en" + m[3] + productID + "/p"

	api := c.tradeinnAPI
	if api == "" {
		api = tradeinnAPI
	}
	body, _, err := c.fetchBody(ctx, strings.TrimRight(api, "/")+"/"+productID, map[string]string{
		"Accept":  "*/*",
		"Referer": canonical,
		"Origin":  u.Scheme + "://" + u.Host,
	})
	if err != nil {
		return nil, canonical, err
	}

	var doc tradeinnDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, canonical, fmt.Errorf("failed to decode tradeinn catalog: %w", err)
	}

	name := strings.TrimSpace(doc.Source.Brand + " " + doc.Source.Model.Eng)
	variants := make(models.VariantSet)
	for _, p := range doc.Source.Products {
		price, ok := tradeinnPrice(p.Sellers)
		if !ok {
			continue
		}
		var labelParts []string
		for _, part := range []string{p.Size, p.Size2, p.Color} {
			if part = strings.TrimSpace(part); part != "" {
				labelParts = append(labelParts, part)
			}
		}
		id := p.ID.String()
		variants[id] = models.Variant{
			Store:     models.StoreTradeinn,
			ProductID: productID,
			VariantID: id,
			Name:      name,
			Label:     strings.Join(labelParts, " "),
			Price:     util.MajorToMinor(price),
			Currency:  tradeinnCurrency,
			// Tradeinn only lists sellable variants.
			InStock: true,
			URL:     canonical,
		}
	}
	return variants, canonical, nil
}

// tradeinnPrice returns the configured country's price; the last seller quoting it wins.
func tradeinnPrice(sellers []tradeinnSeller) (float64, bool) {
	var price float64
	found := false
	for _, s := range sellers {
		for _, p := range s.Prices {
			if p.Country == tradeinnCountry {
				price, found = float64(p.Price), true
			}
		}
	}
	return price, found
}
