package notifier

import (
	"strings"
	"testing"

	"github.com/pauljones0/skuwatch/internal/models"
)

func sampleItem() models.TrackedItem {
	return models.TrackedItem{
		Store:    models.StoreBikeComponents,
		Name:     "Maxxis Minion <DHF>",
		Label:    "29x2.5",
		URL:      "https://www.bike-components.de/p42/?a=1&b=2",
		Price:    4999,
		Currency: "EUR",
		InStock:  true,
	}
}

func TestItemLine(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		mutate func(*models.TrackedItem)
		opts   LineOptions
		want   string
	}{
		{
			name:   "html without icon",
			format: HTML,
			want:   "<code>[BC]</code> <a href=\"https://www.bike-components.de/p42/?a=1&amp;b=2\">Maxxis Minion &lt;DHF&gt;</a>\n29x2.5 <b>49.99 EUR</b>",
		},
		{
			name:   "in stock icon",
			format: HTML,
			opts:   LineOptions{Icon: true, ErrorThreshold: 3},
			want:   "<code>[BC]</code> <a href=\"https://www.bike-components.de/p42/?a=1&amp;b=2\">Maxxis Minion &lt;DHF&gt;</a>\n✅ 29x2.5 <b>49.99 EUR</b>",
		},
		{
			name:   "warning above error threshold",
			format: HTML,
			mutate: func(i *models.TrackedItem) { i.ErrorCount = 4 },
			opts:   LineOptions{Icon: true, ErrorThreshold: 3},
			want:   "<code>[BC]</code> <a href=\"https://www.bike-components.de/p42/?a=1&amp;b=2\">Maxxis Minion &lt;DHF&gt;</a>\n⚠️ 29x2.5 <b>49.99 EUR</b>",
		},
		{
			name:   "markdown",
			format: Markdown,
			mutate: func(i *models.TrackedItem) { i.Label = ""; i.Name = "GX_Chain" },
			want:   "`[BC]` [GX\\_Chain](https://www.bike-components.de/p42/?a=1&b=2)\n**49.99 EUR**",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := sampleItem()
			if tt.mutate != nil {
				tt.mutate(&item)
			}
			if got := ItemLine(tt.format, item, tt.opts); got != tt.want {
				t.Errorf("ItemLine() =\n%q\nwant\n%q", got, tt.want)
			}
		})
	}
}

func TestPaginate(t *testing.T) {
	tests := []struct {
		name   string
		blocks []string
		limit  int
		want   []string
	}{
		{"empty", nil, 10, nil},
		{"fits on one page", []string{"aaa", "bbb"}, 10, []string{"aaa\n\nbbb"}},
		{"separator pushes over", []string{"aaaa", "bbbb"}, 9, []string{"aaaa", "bbbb"}},
		{"oversized block is split", []string{strings.Repeat("x", 12)}, 5, []string{"xxxxx", "xxxxx", "xx"}},
		{"counts runes not bytes", []string{"ééé", "ééé"}, 8, []string{"ééé\n\nééé"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Paginate(tt.blocks, tt.limit, "\n\n")
			if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
				t.Errorf("Paginate() = %q, want %q", got, tt.want)
			}
		})
	}
}
