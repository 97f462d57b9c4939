package sqlinline

const QSelectIntegrationToken = `--sql 882dc0fd-1c54-401c-b260-1edb6d7f1806
select token
from integration_tokens
where provider = $1::text
limit 1;
`

const QUpsertIntegrationToken = `--sql 9d8fd1b0-86ba-436e-beb1-35c1257d2d31
insert into integration_tokens (id, provider, token, props, created_at, updated_at)
values (gen_random_uuid(), $1::text, $2::text, $3::jsonb, now(), now())
on conflict (provider) do update set
    token = excluded.token,
    props = excluded.props,
    updated_at = now();
`
