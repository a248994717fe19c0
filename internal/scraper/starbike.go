package scraper

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pauljones0/skuwatch/internal/models"
	"github.com/pauljones0/skuwatch/internal/util"
)

var sbHeaders = map[string]string{
	"Cookie": "country=KZ; currency_relaunch=EUR; vat=hide",
}

// NewStarbike returns the adapter for starbike.com. Starbike has no product
// number in its markup, so the product ID is derived from the final URL.
func (c *Client) NewStarbike() Adapter {
	return newStoreAdapter(models.StoreStarbike, c.validator(), c.parseStarbike)
}

func (c *Client) parseStarbike(ctx context.Context, url string) (models.VariantSet, string, error) {
	doc, _, finalURL, err := c.fetchHTMLContent(ctx, url, sbHeaders)
	if err != nil {
		return nil, finalURL, err
	}
	sel := c.selectors.Starbike

	name := strings.TrimSpace(doc.Find(sel.Title).First().Text())
	if name == "" {
		return nil, finalURL, fmt.Errorf("no product title on %s", finalURL)
	}
	productID := util.URLID(finalURL)

	names := make(map[string]string)
	doc.Find(sel.VariantName).Each(func(_ int, s *goquery.Selection) {
		if id, ok := s.Attr("meta-id"); ok {
			names[id] = strings.TrimSpace(s.Text())
		}
	})

	inStock := make(map[string]bool)
	doc.Find(sel.Eta).Each(func(_ int, s *goquery.Selection) {
		if id, ok := s.Attr("meta-id"); ok {
			inStock[id] = !s.HasClass(sel.EtaMissing)
		}
	})

	prices := doc.Find(sel.Price)
	if prices.Length() == 0 {
		return nil, finalURL, fmt.Errorf("no prices on %s", finalURL)
	}

	variants := make(models.VariantSet, prices.Length())
	var parseErr error
	prices.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		metaID, _ := s.Attr("meta-id")
		price, err := util.ParsePriceMinor(s.Text())
		if err != nil {
			parseErr = err
			return false
		}

		// A single-option product is tracked as variant "0" without a label.
		id, label := metaID, names[metaID]
		if len(names) <= 1 {
			id, label = "0", ""
		}
		variants[id] = models.Variant{
			Store:     models.StoreStarbike,
			ProductID: productID,
			VariantID: id,
			Name:      name,
			Label:     label,
			Price:     price,
			Currency:  "EUR",
			InStock:   inStock[metaID],
			URL:       finalURL,
		}
		return true
	})
	if parseErr != nil {
		return nil, finalURL, parseErr
	}
	return variants, finalURL, nil
}
