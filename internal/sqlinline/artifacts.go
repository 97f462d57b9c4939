package sqlinline

// Upserts keyed by owner job id keep artifact writes idempotent under
// at-least-once delivery.
const QUpsertArtifact = `--sql cdda2f4e-522c-4be3-acfe-7e2d577e83a3
insert into artifacts (id, owner_job_id, size_bytes, storage_tier, location, content_type, created_at)
values ($1::uuid, $2::uuid, $3::bigint, $4::text, $5::text, $6::text, now())
on conflict (owner_job_id) do update set
    size_bytes = excluded.size_bytes,
    storage_tier = excluded.storage_tier,
    location = excluded.location,
    content_type = excluded.content_type;
`

const QSelectArtifactByOwner = `--sql f8c8dc39-4b27-48f0-a1d4-486c466f8be8
select id, owner_job_id, size_bytes, storage_tier, location, content_type, created_at
from artifacts
where owner_job_id = $1::uuid
limit 1;
`

const QWriteInlineResult = `--sql 7169619f-4161-4127-99c4-b3b42eeb9395
update jobs
set result = $2::bytea, updated_at = now()
where id = $1::uuid;
`

const QReadInlineResult = `--sql fe71d5a1-a212-41cf-9a47-176d9b369b3f
select result
from jobs
where id = $1::uuid
limit 1;
`

const QInsertArtifactChunk = `--sql faf62e8d-0f89-44d5-a49f-57f2ea44a068
insert into artifact_chunks (owner_job_id, chunk_index, chunk_bytes, total_chunks)
values ($1::uuid, $2::int, $3::bytea, $4::int)
on conflict (owner_job_id, chunk_index) do update set
    chunk_bytes = excluded.chunk_bytes,
    total_chunks = excluded.total_chunks;
`

const QSelectArtifactChunks = `--sql e4eb5c99-d6b5-4f41-87f0-46d6acb36ff1
select chunk_index, chunk_bytes, total_chunks
from artifact_chunks
where owner_job_id = $1::uuid
order by chunk_index asc;
`

const QDeleteArtifactChunks = `--sql 03dc2307-18ee-418b-9cf5-5ee30cf82942
delete from artifact_chunks
where owner_job_id = $1::uuid;
`
