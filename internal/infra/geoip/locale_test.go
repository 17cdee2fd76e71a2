package geoip

import "testing"

func TestLocaleForCountry(t *testing.T) {
	tests := []struct {
		country string
		want    string
	}{
		{"FR", "fr"},
		{"br", "pt"},
		{" jp ", "ja"},
		{"", "en"},
		{"ZZ", "en"},
	}
	for _, tc := range tests {
		if got := LocaleForCountry(tc.country, "en"); got != tc.want {
			t.Fatalf("LocaleForCountry(%q) = %q, want %q", tc.country, got, tc.want)
		}
	}
}
