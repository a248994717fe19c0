package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/pauljones0/skuwatch/internal/models"
	"github.com/pauljones0/skuwatch/internal/util"
)

// Option surcharges are listed net of VAT.
const b24SurchargeFactor = 1.191

var b24PageView = regexp.MustCompile(`(?s)window\.dataLayer\.push\((\{\\"vpv.+?\})\);`)

type b24PageData struct {
	IsAvailable                bool     `json:"isAvailable"`
	ProductOptionsAvailability []string `json:"productOptionsAvailability"`
}

type b24CartProps struct {
	GTMData struct {
		ID      flexString `json:"id"`
		Name    string     `json:"name"`
		Variant string     `json:"variant"`
		Price   flexFloat  `json:"price"`
	} `json:"gtmData"`
	ProductDetailPrice struct {
		CurrencyCode string `json:"currencyCode"`
	} `json:"productDetailPrice"`
	ProductOptionList []b24Option `json:"productOptionList"`
}

type b24Option struct {
	OptionValueList []b24OptionValue `json:"optionValueList"`
}

type b24OptionValue struct {
	ID        flexString `json:"id"`
	Name      string     `json:"name"`
	Surcharge flexFloat  `json:"surcharge"`
}

func (v b24OptionValue) label() string {
	s := strings.ReplaceAll(v.Name, "not deliverable: ", "")
	return strings.ReplaceAll(s, " - add {SURCHARGE}", "")
}

func (v b24OptionValue) surcharge() int64 {
	return util.MajorToMinor(float64(v.Surcharge) * b24SurchargeFactor)
}

// NewBike24 returns the adapter for bike24.com, rendered headless.
func (c *Client) NewBike24() Adapter {
	return newStoreAdapter(models.StoreBike24, c.validator(), c.parseBike24)
}

func (c *Client) parseBike24(ctx context.Context, url string) (models.VariantSet, string, error) {
	doc, html, finalURL, err := c.renderHTML(ctx, url)
	if err != nil {
		return nil, finalURL, err
	}

	m := b24PageView.FindStringSubmatch(html)
	if m == nil {
		return nil, finalURL, fmt.Errorf("no page view dataLayer on %s", finalURL)
	}
	raw := strings.ReplaceAll(m[1], `\"`, `"`)
	raw = strings.ReplaceAll(raw, `\\"`, `\"`)
	var page b24PageData
	if err := json.Unmarshal([]byte(raw), &page); err != nil {
		return nil, finalURL, fmt.Errorf("failed to decode page view dataLayer: %w", err)
	}
	stock := make(map[string]string, len(page.ProductOptionsAvailability))
	for _, entry := range page.ProductOptionsAvailability {
		name, count, ok := strings.Cut(strings.ReplaceAll(entry, `\/`, "/"), "|")
		if !ok {
			continue
		}
		stock[strings.ReplaceAll(name, ":", "|")] = count
	}
	available := func(label string) bool {
		count, ok := stock[label]
		return ok && count != "0"
	}

	propsAttr, ok := doc.Find(c.selectors.Bike24.AddToCart).First().Attr("data-props")
	if !ok {
		return nil, finalURL, fmt.Errorf("no add-to-cart props on %s", finalURL)
	}
	var props b24CartProps
	if err := json.Unmarshal([]byte(propsAttr), &props); err != nil {
		return nil, finalURL, fmt.Errorf("failed to decode add-to-cart props: %w", err)
	}

	name := strings.ReplaceAll(props.GTMData.Name, `\/`, "/")
	label := strings.ReplaceAll(props.GTMData.Variant, `\/`, "/")
	if parts := strings.Split(name, " - "); len(parts) > 1 {
		name = parts[0]
		extra := strings.Join(parts[1:], ", ")
		if label != "" {
			extra += ", " + label
		}
		label = extra
	}
	withPrefix := func(s string) string {
		if label != "" {
			s = label + ", " + s
		}
		return strings.TrimSpace(strings.ReplaceAll(s, `\/`, "/"))
	}

	base := models.Variant{
		Store:     models.StoreBike24,
		ProductID: props.GTMData.ID.String(),
		Name:      name,
		Currency:  strings.ToUpper(props.ProductDetailPrice.CurrencyCode),
		URL:       finalURL,
	}
	price := util.MajorToMinor(float64(props.GTMData.Price))

	variants := make(models.VariantSet)
	switch opts := props.ProductOptionList; len(opts) {
	case 0:
		v := base
		v.VariantID = "0"
		v.Label = label
		v.Price = price
		v.InStock = page.IsAvailable
		variants[v.VariantID] = v
	case 1:
		for _, o := range opts[0].OptionValueList {
			v := base
			v.VariantID = o.ID.String()
			v.Label = withPrefix(o.label())
			v.Price = price + o.surcharge()
			v.InStock = available(o.label())
			variants[v.VariantID] = v
		}
	case 2:
		for _, o1 := range opts[0].OptionValueList {
			for _, o2 := range opts[1].OptionValueList {
				v := base
				v.VariantID = util.ShortID(o1.ID.String() + o2.ID.String())
				v.Label = withPrefix(o1.label() + " | " + o2.label())
				v.Price = price + o1.surcharge() + o2.surcharge()
				v.InStock = available(o1.label()) && available(o2.label())
				variants[v.VariantID] = v
			}
		}
	default:
		return nil, finalURL, fmt.Errorf("product on %s has %d option lists", finalURL, len(opts))
	}
	return variants, finalURL, nil
}
