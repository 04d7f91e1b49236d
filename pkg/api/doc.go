/*
Package api serves the dispatcher over HTTP and reports readiness over the
standard gRPC health protocol.

HTTP routes (chi):

	POST   /v1/tasks                                submit a task
	POST   /v1/workers/{id}/tasks/{task}/complete   retire a finished task
	POST   /v1/workers/{id}/tasks/{task}/cancel     retire an abandoned task
	GET    /v1/workers                              list the pool in scheduling order
	POST   /v1/workers                              register a worker
	GET    /v1/workers/{id}                         inspect one worker
	DELETE /v1/workers/{id}                         remove a worker, resubmitting its backlog
	PUT    /v1/workers/{id}/state                   replace a worker's state
	GET    /v1/history                              recent request records
	GET    /v1/events                               websocket event stream
	GET    /v1/cluster                              Raft membership (clustered mode)
	POST   /v1/cluster/tokens                       issue a join token (leader)
	POST   /v1/cluster/join                         add a voter (leader)
	DELETE /v1/cluster/servers/{id}                 remove a voter (leader)
	GET    /health, /ready, /live, /metrics

Errors are returned as {"error": ..., "kind": ...} where kind is the label
produced by dispatcher.ErrorKind. No ready worker and follower nodes answer
503, duplicates 409, unknown workers or tasks 404 and malformed tasks 400.

Every /v1 route passes the optional access list (403 "forbidden"). Task
submission is additionally throttled per client address with a token
bucket (429 "rate_limited"). The client address is the connection's peer.
When the peer is a trusted proxy (WithTrustedProxies) the first
X-Forwarded-For entry, then X-Real-IP, take its place. The client address
is also the default origin of a submitted task.

The gRPC server only carries grpc.health.v1.Health. Its status follows
the pool: SERVING while at least one worker is ready.
*/
package api
