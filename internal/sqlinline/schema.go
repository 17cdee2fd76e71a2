package sqlinline

const QEnsureCreativeSchema = `--sql 9a1c3e52-7d64-4b0f-8e2a-5c6b1f0d9e37
create table if not exists creative_jobs (
  id text primary key,
  owner_id text not null,
  status text not null check (status in ('pending', 'processing', 'completed', 'failed')),
  progress int not null default 0,
  attempts int not null default 0,
  max_attempts int not null default 3,
  payload jsonb not null,
  result jsonb,
  error text not null default '',
  created_at timestamptz not null,
  updated_at timestamptz not null,
  started_at timestamptz,
  completed_at timestamptz
);
create index if not exists creative_jobs_status_updated_idx on creative_jobs(status, updated_at);
create index if not exists creative_jobs_owner_idx on creative_jobs(owner_id);
create table if not exists brands (
  id text primary key,
  name text not null,
  tagline text,
  website text,
  primary_color text,
  secondary_color text,
  accent_color text,
  text_color text,
  background_color text,
  heading_font text,
  body_font text,
  logo_url text,
  logo_dark_url text
);
create table if not exists provider_credentials (
  provider text primary key,
  api_key text not null,
  updated_at timestamptz not null default now()
);
`
