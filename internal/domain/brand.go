package domain

// Brand carries the identity fields used as template defaults.
type Brand struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Tagline         string `json:"tagline"`
	Website         string `json:"website"`
	PrimaryColor    string `json:"primary_color"`
	SecondaryColor  string `json:"secondary_color"`
	AccentColor     string `json:"accent_color"`
	TextColor       string `json:"text_color"`
	BackgroundColor string `json:"background_color"`
	HeadingFont     string `json:"heading_font"`
	BodyFont        string `json:"body_font"`
	LogoURL         string `json:"logo_url"`
	LogoDarkURL     string `json:"logo_dark_url"`
}

// Template is a layout definition for one format and category.
type Template struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Format   Format   `json:"format"`
	Category string   `json:"category"`
	Markup   string   `json:"-"`
	Style    string   `json:"-"`
	Tokens   []string `json:"tokens,omitempty"`
}
