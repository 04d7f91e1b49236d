/*
Package replay runs recorded traces through a scheduler to compare
placement policies offline.

A trace lists the starting workers and a sequence of steps:

	scheduler:
	  task_cost: 2s
	  reload_cost: 20s
	workers:
	  - id: w1
	    environment: {target: python}
	  - id: w2
	    environment: {target: go}
	steps:
	  - submit: {id: r1, origin: 10.0.0.1, environment: {target: go}}
	  - submit: {origin: 10.0.0.2, environment: {target: rust}, weight: 3}
	  - complete: {id: r1}
	  - set_state: {worker: w1, status: draining}
	  - remove_worker: w2

Run reports every decision with its projected wait, the number of reloads
and the total projected wait, which is the cost the policy incurred.
*/
package replay
