/*
Package storage persists the scheduler snapshot so a restarted server resumes
with the same workers, backlogs and history.

Every driver stores one JSON record per key:

	{"saved_at": "...", "snapshot": {"history_capacity": 64, "workers": [...], "history": [...]}}

Drivers:

	bolt    BoltStore, bucket "snapshots" in a local bbolt file
	sqlite  SQLiteStore, table "snapshots" in a local SQLite file (WAL mode)
	redis   RedisStore, key "<key>:snapshot", shareable between nodes
	none    no persistence; Open returns a nil Store

The dispatcher saves after every successful transition and loads once at
startup. A missing snapshot is reported as ErrNotFound and means "start
empty". Raft deployments do not use this package: the replicated log and
its snapshots live in the manager's raft-boltdb stores.
*/
package storage
