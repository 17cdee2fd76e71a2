package sqlinline

const QSelectBrand = `--sql 6dfbbdb3-bb4a-42fb-ac1d-43912ae95c1b
select id, name, coalesce(tagline, ''), coalesce(website, ''),
       coalesce(primary_color, ''), coalesce(secondary_color, ''), coalesce(accent_color, ''),
       coalesce(text_color, ''), coalesce(background_color, ''),
       coalesce(heading_font, ''), coalesce(body_font, ''),
       coalesce(logo_url, ''), coalesce(logo_dark_url, '')
from brands
where id = $1::text
limit 1;
`
