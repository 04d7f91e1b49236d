/*
Package events provides an in-memory broker for task and worker events.

The dispatcher publishes one event per committed transition. Consumers such as
the HTTP event stream subscribe, optionally to a subset of types, and read
from a buffered channel:

	sub := broker.Subscribe(events.EventTaskAssigned, events.EventTaskDropped)
	defer broker.Unsubscribe(sub)

	for e := range sub {
		fmt.Println(e.Type, e.TaskID, e.WorkerID)
	}

# Event Types

	task.assigned    a task was placed; metadata carries reason, reload, wait
	task.completed   a task was retired after finishing
	task.cancelled   a task was retired without finishing
	task.rejected    a submission failed (no ready worker, duplicate id)
	task.orphaned    a task was left behind by a removed worker
	task.dropped     an orphan could not be placed on any remaining worker
	worker.added
	worker.removed
	worker.state     a worker's reported state changed

# Delivery

Publish never blocks the caller. Events go through a single queue and a
single broadcast goroutine, so every subscriber sees them in publish order.
A subscriber whose buffer is full misses the event; Dropped counts those
misses. Nothing is persisted.
*/
package events
