/*
Package health probes sandbox workers over HTTP, TCP, gRPC or by running a
command.

The supervisor owns one Checker and one Status per configured worker. Each
probe result is folded into the Status; when the folded readiness flips, the
supervisor reports a types.ProbeState for that worker to the scheduler, which
then starts or stops offering it work.

	┌────────────┐  Check(ctx)  ┌──────────┐  Update  ┌──────────┐
	│ supervisor ├─────────────►│ Checker  ├─────────►│  Status  │
	└─────┬──────┘              └──────────┘          └────┬─────┘
	      │                 flipped? ProbeState()          │
	      └◄───────────────────────────────────────────────┘
	      │
	      ▼
	UpdateState(worker, ProbeState)

# Checkers

HTTPChecker issues a request and treats a status in [min, max] (200-399 by
default) as healthy; with Expect set the body must also contain that text.
TCPChecker only needs the connection to open. GRPCChecker calls the
standard grpc.health.v1 Check and wants SERVING. ExecChecker runs a command
on the host and treats exit status 0 as healthy; the first 100 characters
of output end up in the result message.

NewChecker builds one of these from a Spec, which is also the shape the
configuration file uses:

	workers:
	  - id: py-1
	    environment: {target: python}
	    probe:
	      type: http
	      target: http://10.0.0.7:8080/healthz
	      interval: 5s
	      timeout: 2s
	      retries: 3

# Status

A new Status is unhealthy until its first successful probe. After that it
takes Retries consecutive failures to become unhealthy again, and a single
success to recover. Failures during StartPeriod are not counted. Update
returns true only when Healthy changes, so callers can report transitions
rather than every probe.
*/
package health
