package sqlinline

const QCreateGenerationsTable = `--sql 6f1d2c0a-93b4-4e57-a1c8-0d2e4b7f9a31
create table if not exists generations (
  id            text primary key,
  session_id    text not null,
  brief_id      text not null default '',
  flow          text not null,
  prompt        text not null default '',
  count         int  not null,
  aspect_ratio  text not null,
  outcome       text not null,
  result_json   jsonb,
  error_message text not null default '',
  attempts      int  not null default 0,
  created_at    timestamptz not null default now(),
  updated_at    timestamptz not null default now()
);`

const QInsertGeneration = `--sql 0b7e4f62-5d18-4c3a-9e21-7a6c5b8d4f10
insert into generations (id, session_id, brief_id, flow, prompt, count, aspect_ratio, outcome)
values ($1, $2, $3, $4, $5, $6, $7, $8)
returning created_at, updated_at;`

const QUpdateGenerationOutcome = `--sql 9a3c7e15-2f84-4b6d-8c07-e1d5a9f2b364
update generations
set outcome       = $2,
    attempts      = $3,
    error_message = coalesce($4, error_message),
    result_json   = coalesce($5, result_json),
    updated_at    = now()
where id = $1;`

const QSelectGenerationByID = `--sql 3e8b1d47-a6c2-4f95-b0d3-5c7e2a9f1b86
select id, session_id, brief_id, flow, prompt, count, aspect_ratio, outcome,
       coalesce(result_json, 'null'::jsonb), error_message, attempts, created_at, updated_at
from generations
where id = $1;`

const QSelectRecentGenerations = `--sql c4f2a8e9-7b13-4d60-9e5a-2b8d1c6f7a03
select id, session_id, brief_id, flow, prompt, count, aspect_ratio, outcome,
       coalesce(result_json, 'null'::jsonb), error_message, attempts, created_at, updated_at
from generations
order by created_at desc
limit $1;`
