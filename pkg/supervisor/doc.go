// Package supervisor probes workers with health checkers and reports
// readiness changes to the scheduler as types.ProbeState values.
package supervisor
