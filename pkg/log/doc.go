/*
Package log provides structured logging for Ember using zerolog.

The package keeps one global zerolog.Logger that every other package writes
through, plus helpers that derive child loggers carrying the fields Ember logs
most often: the component name, the worker a decision concerns and the task
being placed.

# Configuration

	log.Init(log.Config{
		Level:      log.ParseLevel(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
		Output:     os.Stderr,
	})

Level filters everything below the threshold globally. JSONOutput selects
between one JSON object per line (production) and zerolog's console writer
(development). Output defaults to stdout.

# Context Loggers

	dlog := log.WithComponent("dispatcher")
	dlog.Info().
		Str("task_id", a.Task.ID.String()).
		Str("worker_id", string(a.Worker)).
		Str("reason", string(a.Reason)).
		Bool("reload", a.Reload).
		Msg("task assigned")

	wlog := log.ForWorker("supervisor", "worker-3")
	wlog.Warn().Str("message", probe.Message).Msg("worker became unready")

Field names used across the tree: component, worker_id, task_id, reason,
reload, environment, origin, policy.

# Output

JSON:

	{"level":"info","component":"dispatcher","task_id":"run:7f3c","worker_id":"w1","reason":"warm","reload":false,"time":"2026-10-17T10:30:01Z","message":"task assigned"}

Console:

	2026-10-17T10:30:01Z INF task assigned component=dispatcher reason=warm reload=false task_id=run:7f3c worker_id=w1

Snippet bodies are never logged; only the task identifier is.
*/
package log
