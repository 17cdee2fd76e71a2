package sqlinline

const QSelectProviderCredential = `--sql 3e0b8c71-52d4-4f6a-9b1e-7a2c4d8f6e05
select api_key
from provider_credentials
where provider = $1::text
limit 1;
`

const QUpsertProviderCredential = `--sql c4f7a2e9-1b3d-4e8a-a6c5-0d9e2f7b1a34
insert into provider_credentials(provider, api_key, updated_at)
values ($1::text, $2::text, now())
on conflict (provider) do update
set api_key = excluded.api_key, updated_at = now();
`
