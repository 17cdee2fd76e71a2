package sqlinline

const QInsertCreativeJob = `--sql e1d74769-0483-4dae-9a0a-d554afaf4e29
insert into creative_jobs(
  id,
  owner_id,
  status,
  progress,
  attempts,
  max_attempts,
  payload,
  result,
  error,
  created_at,
  updated_at
) values (
  $1::text,
  $2::text,
  $3::text,
  $4::int,
  $5::int,
  $6::int,
  $7::jsonb,
  $8::jsonb,
  $9::text,
  $10::timestamptz,
  $11::timestamptz
);
`

const QSelectCreativeJob = `--sql 537fe915-1cd2-424f-be72-0319d7745d4b
select id, owner_id, status, progress, attempts, max_attempts, payload, result, error,
       created_at, updated_at, started_at, completed_at
from creative_jobs
where id = $1::text
limit 1;
`

const QClaimCreativeJob = `--sql aa44914b-c6a4-4a70-8774-a4f24fb48ac8
update creative_jobs
set status = 'processing', updated_at = $2::timestamptz
where id = $1::text and status = 'pending'
returning id, owner_id, status, progress, attempts, max_attempts, payload, result, error,
          created_at, updated_at, started_at, completed_at;
`

const QUpdateCreativeJob = `--sql 0f2a47b7-0ddb-47ef-80ab-2479a115c2f0
update creative_jobs
set status = $2::text,
    progress = $3::int,
    attempts = $4::int,
    result = $5::jsonb,
    error = $6::text,
    updated_at = $7::timestamptz,
    started_at = $8::timestamptz,
    completed_at = $9::timestamptz
where id = $1::text and status in ('pending', 'processing');
`

const QListCreativeJobsByStatus = `--sql f2ead732-836c-4434-8dc1-f8474c67e139
select id, owner_id, status, progress, attempts, max_attempts, payload, result, error,
       created_at, updated_at, started_at, completed_at
from creative_jobs
where status = $1::text and updated_at < $2::timestamptz
order by updated_at asc
limit $3::int;
`

const QListTerminalCreativeJobsBefore = `--sql 2bcb5c6b-a2b4-4ad9-9eab-11c8f9dff7cd
select id, owner_id, status, progress, attempts, max_attempts, payload, result, error,
       created_at, updated_at, started_at, completed_at
from creative_jobs
where status in ('completed', 'failed')
  and coalesce(completed_at, updated_at) < $1::timestamptz
order by coalesce(completed_at, updated_at) asc
limit $2::int;
`

const QDeleteTerminalCreativeJob = `--sql 5f3a6dd4-0f7e-44ea-b622-3ddf6bfc1d4d
delete from creative_jobs
where id = $1::text and status in ('completed', 'failed');
`

const QJobExists = `--sql be3c24c6-0c89-4a69-b247-9ba0b4d57c6b
select exists(select 1 from creative_jobs where id = $1::text);
`
