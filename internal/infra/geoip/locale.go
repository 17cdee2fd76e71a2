package geoip

import (
	"strings"

	"golang.org/x/text/language"
)

// countryLanguage maps ISO country codes to the language creatives should
// default to for visitors from that country. Unknown countries use the
// region's likely language from CLDR.
var countryLanguage = map[string]string{
	"FR": "fr", "BE": "fr", "CH": "fr", "LU": "fr", "MC": "fr",
	"DE": "de", "AT": "de",
	"ES": "es", "MX": "es", "AR": "es", "CO": "es", "CL": "es",
	"IT": "it",
	"PT": "pt", "BR": "pt",
	"NL": "nl",
	"ID": "id",
	"JP": "ja",
	"CN": "zh", "TW": "zh",
}

// LocaleForCountry returns a BCP 47 language tag for country, or fallback when
// the country is unknown.
func LocaleForCountry(country, fallback string) string {
	country = strings.ToUpper(strings.TrimSpace(country))
	if country == "" {
		return fallback
	}
	if lang, ok := countryLanguage[country]; ok {
		return lang
	}
	region, err := language.ParseRegion(country)
	if err != nil {
		return fallback
	}
	tag, err := language.Compose(region)
	if err != nil {
		return fallback
	}
	base, conf := tag.Base()
	if conf == language.No {
		return fallback
	}
	return base.String()
}
