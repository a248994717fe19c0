package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pauljones0/skuwatch/internal/models"
	"github.com/pauljones0/skuwatch/internal/util"
)

// bike-discount quotes gross prices; tracked prices exclude VAT.
const bdNetFactor = 0.841

var (
	bdProductLayer   = regexp.MustCompile(`(?s)dataLayer = \[(.+?)\]`)
	bdProductPush    = regexp.MustCompile(`(?s)dataLayer\.push\((.+?)\);`)
	bdEcommercePush  = regexp.MustCompile(`(?s)dataLayer\.push \((.+?)\);`)
	bdInStockColours = map[string]bool{"1": true, "6": true}
)

type bdProductInfo struct {
	ProductID flexString `json:"productID"`
	Currency  string     `json:"productCurrency"`
}

type bdEcommerce struct {
	Ecommerce struct {
		Detail struct {
			Products []struct {
				Brand string    `json:"brand"`
				Name  string    `json:"name"`
				Price flexFloat `json:"price"`
			} `json:"products"`
		} `json:"detail"`
	} `json:"ecommerce"`
}

// NewBikeDiscount returns the adapter for bike-discount.de. The store blocks
// non-browser clients, so pages are rendered headless.
func (c *Client) NewBikeDiscount() Adapter {
	return newStoreAdapter(models.StoreBikeDiscount, c.validator(), c.parseBikeDiscount)
}

func (c *Client) parseBikeDiscount(ctx context.Context, url string) (models.VariantSet, string, error) {
	doc, html, finalURL, err := c.renderHTML(ctx, url)
	if err != nil {
		return nil, finalURL, err
	}

	m := bdProductLayer.FindStringSubmatch(html)
	if m == nil {
		m = bdProductPush.FindStringSubmatch(html)
	}
	if m == nil {
		return nil, finalURL, fmt.Errorf("no product dataLayer on %s", finalURL)
	}
	var info bdProductInfo
	if err := json.Unmarshal([]byte(m[1]), &info); err != nil {
		return nil, finalURL, fmt.Errorf("failed to decode product dataLayer: %w", err)
	}

	m = bdEcommercePush.FindStringSubmatch(html)
	if m == nil {
		return nil, finalURL, fmt.Errorf("no ecommerce dataLayer on %s", finalURL)
	}
	var ecommerce bdEcommerce
	if err := json.Unmarshal([]byte(m[1]), &ecommerce); err != nil {
		return nil, finalURL, fmt.Errorf("failed to decode ecommerce dataLayer: %w", err)
	}
	products := ecommerce.Ecommerce.Detail.Products
	if len(products) == 0 {
		return nil, finalURL, fmt.Errorf("ecommerce dataLayer on %s lists no product", finalURL)
	}
	product := products[0]

	base := models.Variant{
		Store:     models.StoreBikeDiscount,
		ProductID: info.ProductID.String(),
		Name:      strings.TrimSpace(product.Brand + " " + product.Name),
		Currency:  strings.ToUpper(info.Currency),
		URL:       finalURL,
	}
	sel := c.selectors.BikeDiscount

	variants := make(models.VariantSet)
	options := doc.Find(sel.OptionInput)
	if options.Length() == 0 {
		href, _ := doc.Find(sel.Availability).First().Attr("href")
		v := base
		v.VariantID = "0"
		v.Price = util.MajorToMinor(float64(product.Price) * bdNetFactor)
		v.InStock = strings.HasSuffix(href, "/InStock")
		variants[v.VariantID] = v
		return variants, finalURL, nil
	}

	var parseErr error
	options.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		id, _ := s.Attr("value")
		priceAttr, _ := s.Attr("price")
		price, err := strconv.ParseFloat(strings.TrimSpace(priceAttr), 64)
		if err != nil {
			parseErr = fmt.Errorf("option %s has invalid price %q: %w", id, priceAttr, err)
			return false
		}
		colour, _ := s.Attr("stock-color")
		label, _ := s.Attr("title")

		v := base
		v.VariantID = id
		v.Label = strings.TrimSpace(label)
		v.Price = util.MajorToMinor(price * bdNetFactor)
		v.InStock = bdInStockColours[colour]
		variants[id] = v
		return true
	})
	if parseErr != nil {
		return nil, finalURL, parseErr
	}
	return variants, finalURL, nil
}
