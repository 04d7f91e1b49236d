/*
Package manager replicates the scheduler with Raft consensus.

A Manager is a dispatcher.Committer: the leader encodes every command into
the Raft log and each node's SchedulerFSM applies it to its own
balancer.Scheduler value. Because transitions are pure and deterministic,
every node that applied the same log prefix holds the same scheduler.

# Cluster lifecycle

The first node calls Bootstrap to form a single node cluster. Further
nodes call Start and are added by the leader with AddVoter, usually after
presenting a join token the leader issued with GenerateJoinToken. Join
checks the token, adds the voter and spends the token:

	m, err := manager.NewManager(manager.Config{
		NodeID:    "node-1",
		BindAddr:  "10.0.0.1:7072",
		DataDir:   "/var/lib/ember/raft",
		Scheduler: schedCfg,
	})
	if err != nil {
		return err
	}
	if err := m.Bootstrap(); err != nil {
		return err
	}
	d := dispatcher.New(m)

Raft timeouts are tuned for fast failover: 500ms heartbeat and election
timeouts, 250ms leader lease. The log and stable stores live in BoltDB
files under DataDir, with up to two retained snapshots beside them.

# Reads

State returns the local FSM copy. On a follower it can trail the leader by
the entries not yet applied; commands are only accepted by the leader and
return dispatcher.ErrNotLeader elsewhere.
*/
package manager
