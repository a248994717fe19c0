package scraper

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pauljones0/skuwatch/internal/models"
	"github.com/pauljones0/skuwatch/internal/util"
)

// bike-components shows gross prices; tracked prices are net of the 19% VAT.
const bcNetFactor = 0.84

// NewBikeComponents returns the adapter for bike-components.de, which
// publishes every variant as schema.org JSON-LD.
func (c *Client) NewBikeComponents() Adapter {
	return newStoreAdapter(models.StoreBikeComponents, c.validator(), c.parseBikeComponents)
}

func (c *Client) parseBikeComponents(ctx context.Context, url string) (models.VariantSet, string, error) {
	doc, _, finalURL, err := c.fetchHTMLContent(ctx, url, nil)
	if err != nil {
		return nil, finalURL, err
	}

	var nodes []JSONLDNode
	doc.Find(c.selectors.BikeComponents.LDJSON).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		decoded, err := decodeJSONLDNodes(s.Text())
		if err != nil {
			return true
		}
		for _, n := range decoded {
			if n.Type == "Product" || n.Type == "ProductGroup" {
				nodes = decoded
				return false
			}
		}
		return true
	})
	if nodes == nil {
		return nil, finalURL, fmt.Errorf("no Product JSON-LD found on %s", finalURL)
	}

	for _, n := range nodes {
		switch n.Type {
		case "Product":
			return bcProductVariants(n, finalURL), finalURL, nil
		case "ProductGroup":
			return bcGroupVariants(n, finalURL), finalURL, nil
		}
	}
	return nil, finalURL, fmt.Errorf("no Product JSON-LD found on %s", finalURL)
}

func bcProductVariants(n JSONLDNode, url string) models.VariantSet {
	productID := n.SKU.String()
	variants := make(models.VariantSet, len(n.Offers))
	for _, offer := range n.Offers {
		v := bcVariant(n, productID, offer.SKU.String(), offer.Name, offer.price(), offer.Availability, url)
		variants[v.VariantID] = v
	}
	return variants
}

func bcGroupVariants(n JSONLDNode, url string) models.VariantSet {
	productID := n.ProductGroupID.String()
	variants := make(models.VariantSet, len(n.HasVariant))
	for _, sku := range n.HasVariant {
		v := bcVariant(n, productID, sku.SKU.String(), sku.Name, sku.Offers.price(), sku.Offers.Availability, url)
		variants[v.VariantID] = v
	}
	return variants
}

func bcVariant(n JSONLDNode, productID, sku, label string, ps JSONLDPriceSpec, availability, url string) models.Variant {
	// Variant SKUs are the product SKU plus a suffix; the suffix is the variant ID.
	variantID := strings.ReplaceAll(strings.ReplaceAll(sku, productID, ""), "-", "")
	if variantID == "" {
		variantID = "0"
	}
	price := float64(ps.Price)
	if strings.Contains(strings.ToLower(ps.ValueAddedTaxIncluded.String()), "true") {
		price *= bcNetFactor
	}
	return models.Variant{
		Store:     models.StoreBikeComponents,
		ProductID: productID,
		VariantID: variantID,
		Name:      cleanText(strings.TrimSpace(n.Brand.Name + " " + n.Name)),
		Label:     cleanText(label),
		Price:     util.MajorToMinor(price),
		Currency:  strings.ToUpper(ps.PriceCurrency),
		InStock:   strings.Contains(availability, "InStock"),
		URL:       url,
	}
}
