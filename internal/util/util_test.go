package util

import (
	"testing"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "already canonical",
			input: "https://www.bike-components.de/en/Shimano/XT-Chain-p12345/",
			want:  "https://www.bike-components.de/en/Shimano/XT-Chain-p12345/",
		},
		{
			name:  "http upgraded and host lowered",
			input: "http://WWW.Starbike.com/en/some-tyre/",
			want:  "https://www.starbike.com/en/some-tyre/",
		},
		{
			name:  "tracking params and fragment dropped",
			input: "https://www.chainreactioncycles.com/en/rp-prod1234?utm_source=x&gclid=y&colour=red#reviews",
			want:  "https://www.chainreactioncycles.com/en/rp-prod1234?colour=red",
		},
		{
			name:  "non-breaking space removed",
			input: "https://www.tradeinn.com/bikeinn/en/x/1234/p\u00a0 ",
			want:  "https://www.tradeinn.com/bikeinn/en/x/1234/p",
		},
		{
			name:    "no host",
			input:   "/relative/path",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeURL(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizeURL() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("NormalizeURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHostMatches(t *testing.T) {
	if !HostMatches("www.bike24.com", "bike24.com") {
		t.Error("subdomain should match")
	}
	if !HostMatches("bike24.com", "bike24.com") {
		t.Error("exact host should match")
	}
	if HostMatches("notbike24.com", "bike24.com") {
		t.Error("suffix without dot must not match")
	}
}

func TestParsePriceMinor(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{"49", 4900, false},
		{"49.99", 4999, false},
		{"49,9", 4990, false},
		{"1.299,95 €", 129995, false},
		{"£1,299.95", 129995, false},
		{"1,299", 129900, false},
		{"12.345.678", 1234567800, false},
		{"€ 0,50", 50, false},
		{"free", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePriceMinor(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePriceMinor(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParsePriceMinor(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestMajorToMinorAndFormat(t *testing.T) {
	if got := MajorToMinor(19.99); got != 1999 {
		t.Errorf("MajorToMinor(19.99) = %d, want 1999", got)
	}
	if got := FormatMinor(129995); got != "1299.95" {
		t.Errorf("FormatMinor(129995) = %q", got)
	}
	if got := FormatMinor(5); got != "0.05" {
		t.Errorf("FormatMinor(5) = %q", got)
	}
	if got := FormatMinor(-250); got != "-2.50" {
		t.Errorf("FormatMinor(-250) = %q", got)
	}
}

func TestCRC16(t *testing.T) {
	// CRC-16/ARC check value.
	if got := CRC16([]byte("123456789")); got != 0xBB3D {
		t.Errorf("CRC16(check) = %#x, want 0xbb3d", got)
	}
	if ShortID("sku-1") == ShortID("sku-2") {
		t.Error("ShortID should differ for different SKUs")
	}
}

func TestURLID(t *testing.T) {
	if got := URLID("123456789"); got != "3421780262" {
		t.Errorf("URLID(check) = %s, want 3421780262", got)
	}
}

func TestSafeAtoi(t *testing.T) {
	if SafeAtoi(" 42 ") != 42 {
		t.Error("SafeAtoi should trim spaces")
	}
	if SafeAtoi("x") != 0 {
		t.Error("SafeAtoi should return 0 for invalid input")
	}
}
