/*
Package types defines the value types shared by every Ember package.

The types describe one unit of work and the workers that execute it:

  - Environment: the comparable configuration (toolchain target and build
    settings) a worker is warmed with. Switching it costs a reload.
  - ClientAddress: the origin of a request, used for session affinity.
  - Task: an environment, an origin and a TaskID.
  - TaskID: a capability interface exposing Cost(). RunID costs one unit,
    WeightedID carries an explicit weight.
  - WorkerID: the stable identity of a worker process.
  - WorkerState: a capability interface exposing Ready(). WorkerStatus is
    the lifecycle reported by the process supervisor and ProbeState is the
    outcome of health probing.

All types are immutable values compared with ==. TaskID and WorkerState
are interfaces, so their serialisable forms are TaskRef and StateRef:

	ref := types.RefOf(types.RunID{Snippet: "a1b2"})
	id, err := ref.TaskID()

Task implements json.Marshaler using TaskRef, which lets snapshots and
replicated commands carry tasks without knowing the concrete TaskID type.
*/
package types
