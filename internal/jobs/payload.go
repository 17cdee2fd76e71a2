package jobs

import (
	"errors"
	"net/url"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"golang.org/x/text/language"

	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/domain"
)

const (
	maxContentFields = 64
	maxDirectives    = 8
	maxPromptLength  = 2000
)

// ValidatePayload checks the fields an enqueue request must carry. The
// returned error is a validation.Errors keyed by JSON field name.
func ValidatePayload(p domain.Payload) error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.BrandID, validation.Required, validation.Length(1, 128)),
		validation.Field(&p.TemplateID, validation.Required, validation.Length(1, 128)),
		validation.Field(&p.Formats,
			validation.Each(validation.In(domain.FormatLandscape, domain.FormatSquare, domain.FormatStory).
				Error("must be one of landscape, square, story")),
			validation.By(uniqueFormats),
		),
		validation.Field(&p.Content, validation.Length(0, maxContentFields)),
		validation.Field(&p.ImageDirectives,
			validation.When(p.GenerateImages, validation.Required.Error("are required when generate_images is set")),
			validation.Length(0, maxDirectives),
			validation.Each(validation.By(validDirective)),
		),
		validation.Field(&p.Images, validation.Each(validation.By(absoluteURL))),
		validation.Field(&p.Locale, validation.By(validLocale)),
	)
}

func uniqueFormats(value any) error {
	formats, _ := value.([]domain.Format)
	seen := make(map[domain.Format]struct{}, len(formats))
	for _, f := range formats {
		if _, dup := seen[f]; dup {
			return validation.NewError("validation_format_duplicate", "must not repeat a format")
		}
		seen[f] = struct{}{}
	}
	return nil
}

func validDirective(value any) error {
	d, ok := value.(domain.ImageDirective)
	if !ok {
		return errors.New("must be an image directive")
	}
	return validation.ValidateStruct(&d,
		validation.Field(&d.Slot, validation.Required, validation.In("hero_image", "product_image", "background_image").
			Error("must be hero_image, product_image or background_image")),
		validation.Field(&d.Prompt, validation.Required, validation.Length(1, maxPromptLength)),
		validation.Field(&d.Style, validation.Length(0, 200)),
	)
}

func absoluteURL(value any) error {
	raw, _ := value.(string)
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return validation.NewError("validation_url_invalid", "must be an absolute http(s) url")
	}
	return nil
}

func validLocale(value any) error {
	raw, _ := value.(string)
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	if _, err := language.Parse(raw); err != nil {
		return validation.NewError("validation_locale_invalid", "must be a BCP 47 language tag")
	}
	return nil
}
