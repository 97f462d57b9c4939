package sqlinline

const QEnqueueJob = `--sql cab2731f-733f-4b9e-ae2c-81c89f84e76c
insert into jobs (id, kind, status, payload, attempt_count, created_at, updated_at)
values ($1::uuid, $2::text, 'queued', $3::jsonb, 0, now(), now())
returning id;
`

// Claim is the queue: the oldest queued row moves to processing under
// FOR UPDATE SKIP LOCKED so concurrent workers never double-claim.
const QClaimNextJob = `--sql 7000f6dd-ff81-478d-a4d2-6392f793744b
with next_job as (
    select id
    from jobs
    where status = 'queued'
    order by created_at asc
    for update skip locked
    limit 1
),
updated as (
    update jobs
    set status = 'processing', updated_at = now()
    where id in (select id from next_job)
    returning id, kind, status, payload, attempt_count, coalesce(external_ref, ''), created_at, updated_at
)
select * from updated;
`

// Conditional transitions: each update matches on the expected prior status
// so a concurrent re-delivery observes zero rows and exits without effect.
const QMarkAwaitingExternal = `--sql a2ef7803-7121-464f-8f11-347a0da9b9cb
update jobs
set status = 'awaiting_external', external_ref = $2::text, updated_at = now()
where id = $1::uuid and status = 'processing';
`

const QRequeueTransient = `--sql c392c5e1-f5f6-457b-b790-fc3fbc4bce51
update jobs
set status = 'queued',
    attempt_count = attempt_count + 1,
    external_ref = null,
    last_error = $3::text,
    updated_at = now()
where id = $1::uuid and status = $2::text;
`

const QCompleteJob = `--sql 9bcfd367-5a97-4fd9-bde4-f66b8e31e09f
update jobs
set status = 'completed', updated_at = now(), terminal_at = now()
where id = $1::uuid and status = $2::text;
`

const QFailJob = `--sql d31ca436-6f47-4d4b-a476-b442de4b0c8a
update jobs
set status = 'failed',
    last_error = $3::text,
    provider_payload = coalesce($4::jsonb, provider_payload),
    updated_at = now(),
    terminal_at = now()
where id = $1::uuid and status = $2::text;
`

// Stale rows are non-terminal jobs whose claimant died or whose terminal
// transition never landed; the sweep hands them back to the queue.
const QSelectStaleJobs = `--sql cc6aac9b-0df5-4c41-a5cd-f7ce77ee08f3
select id, kind, status, attempt_count
from jobs
where status in ('processing', 'awaiting_external')
  and updated_at < now() - make_interval(secs => $1::int)
order by updated_at asc
limit $2::int;
`

const QSelectJobStatus = `--sql 7b848380-c4d0-4d51-80b6-1f15ab2cadc1
select id, kind, status, attempt_count, coalesce(external_ref, ''), coalesce(last_error, ''), created_at, updated_at
from jobs
where id = $1::uuid
limit 1;
`

const QCountSourceItems = `--sql 9576b804-fdb3-494e-acc4-b1fc9c9338d6
select count(*)
from source_items
where source = $1::text and published_at >= now() - make_interval(days => $2::int);
`

const QSelectSourceBatch = `--sql 561a66a6-8b3a-4be3-9701-10080c859fad
select id, title, body
from source_items
where source = $1::text
order by published_at asc, id asc
limit $2::int offset $3::int;
`

const QRecordIndexedCount = `--sql f0e6935b-e521-44f6-9466-643548bf49ed
update jobs
set provider_payload = jsonb_build_object('indexed', $2::int),
    updated_at = now()
where id = $1::uuid;
`
