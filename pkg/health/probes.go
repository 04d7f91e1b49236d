package health

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	maxBodyBytes  = 4096
	maxOutputRune = 100
)

// probe times one check and builds its Result
type probe struct {
	start time.Time
}

func begin() probe { return probe{start: time.Now()} }

func (p probe) pass(format string, args ...any) Result {
	return p.result(true, format, args...)
}

func (p probe) fail(format string, args ...any) Result {
	return p.result(false, format, args...)
}

func (p probe) result(healthy bool, format string, args ...any) Result {
	return Result{
		Healthy:   healthy,
		Message:   fmt.Sprintf(format, args...),
		CheckedAt: p.start,
		Duration:  time.Since(p.start),
	}
}

// HTTPChecker probes a worker's readiness endpoint
type HTTPChecker struct {
	URL     string
	Method  string
	Headers map[string]string
	// StatusMin and StatusMax bound the accepted status codes (200-399)
	StatusMin int
	StatusMax int
	// Expect, when set, must appear in the first 4KiB of the body. Workers
	// use it to report the environment they have loaded.
	Expect string
	Client *http.Client
}

// NewHTTPChecker creates a GET checker accepting any 2xx or 3xx status
func NewHTTPChecker(url string) *HTTPChecker {
	return &HTTPChecker{
		URL:       url,
		Method:    http.MethodGet,
		Headers:   map[string]string{},
		StatusMin: 200,
		StatusMax: 399,
		Client:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Check performs one request
func (h *HTTPChecker) Check(ctx context.Context) Result {
	p := begin()

	req, err := http.NewRequestWithContext(ctx, h.Method, h.URL, nil)
	if err != nil {
		return p.fail("bad probe request: %v", err)
	}
	for k, v := range h.Headers {
		req.Header.Set(k, v)
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return p.fail("request failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))

	status := fmt.Sprintf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	if resp.StatusCode < h.StatusMin || resp.StatusCode > h.StatusMax {
		return p.fail("%s (expected %d-%d)", status, h.StatusMin, h.StatusMax)
	}
	if h.Expect != "" && !bytes.Contains(body, []byte(h.Expect)) {
		return p.fail("%s, body missing %q", status, h.Expect)
	}
	return p.pass("%s", status)
}

func (h *HTTPChecker) Type() CheckType { return CheckTypeHTTP }

func (h *HTTPChecker) WithMethod(method string) *HTTPChecker {
	h.Method = method
	return h
}

func (h *HTTPChecker) WithHeader(key, value string) *HTTPChecker {
	h.Headers[key] = value
	return h
}

func (h *HTTPChecker) WithStatusRange(min, max int) *HTTPChecker {
	h.StatusMin, h.StatusMax = min, max
	return h
}

// WithExpect also requires text in the response body
func (h *HTTPChecker) WithExpect(text string) *HTTPChecker {
	h.Expect = text
	return h
}

func (h *HTTPChecker) WithTimeout(timeout time.Duration) *HTTPChecker {
	h.Client.Timeout = timeout
	return h
}

// TCPChecker passes when the worker accepts a connection
type TCPChecker struct {
	Address string
	Timeout time.Duration
}

// NewTCPChecker creates a checker dialing address
func NewTCPChecker(address string) *TCPChecker {
	return &TCPChecker{Address: address, Timeout: 5 * time.Second}
}

func (t *TCPChecker) Check(ctx context.Context) Result {
	p := begin()

	d := net.Dialer{Timeout: t.Timeout}
	conn, err := d.DialContext(ctx, "tcp", t.Address)
	if err != nil {
		return p.fail("connection failed: %v", err)
	}
	_ = conn.Close()
	return p.pass("connected to %s", t.Address)
}

func (t *TCPChecker) Type() CheckType { return CheckTypeTCP }

func (t *TCPChecker) WithTimeout(timeout time.Duration) *TCPChecker {
	t.Timeout = timeout
	return t
}

// ExecChecker runs a host command, typically the sandbox tool's own status
// subcommand. Exit status 0 is healthy.
type ExecChecker struct {
	Command []string
	Timeout time.Duration
	// Env is appended to the process environment
	Env []string
}

// NewExecChecker creates a checker running command
func NewExecChecker(command []string) *ExecChecker {
	return &ExecChecker{Command: command, Timeout: 10 * time.Second}
}

func (e *ExecChecker) Check(ctx context.Context) Result {
	p := begin()
	if len(e.Command) == 0 {
		return p.fail("no command specified")
	}

	ctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.Command[0], e.Command[1:]...)
	if len(e.Env) > 0 {
		cmd.Env = append(os.Environ(), e.Env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout, cmd.Stderr = &stdout, &stderr

	label := strings.Join(e.Command, " ")
	if err := cmd.Run(); err != nil {
		if out := clip(stderr.String()); out != "" {
			return p.fail("%s: %v: %s", label, err, out)
		}
		return p.fail("%s: %v", label, err)
	}
	if out := clip(stdout.String()); out != "" {
		return p.pass("%s: %s", label, out)
	}
	return p.pass("%s", label)
}

func (e *ExecChecker) Type() CheckType { return CheckTypeExec }

func (e *ExecChecker) WithTimeout(timeout time.Duration) *ExecChecker {
	e.Timeout = timeout
	return e
}

func (e *ExecChecker) WithEnv(env ...string) *ExecChecker {
	e.Env = append(e.Env, env...)
	return e
}

// GRPCChecker asks a worker's grpc.health.v1 service for its status.
// Only SERVING is healthy.
type GRPCChecker struct {
	Target string
	// Service is the name passed in the request; empty asks about the
	// server as a whole
	Service string
	Timeout time.Duration
	Options []grpc.DialOption
}

// NewGRPCChecker creates a checker for the whole server at target
func NewGRPCChecker(target string) *GRPCChecker {
	return &GRPCChecker{
		Target:  target,
		Timeout: 5 * time.Second,
		Options: []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())},
	}
}

func (g *GRPCChecker) Check(ctx context.Context) Result {
	p := begin()

	conn, err := grpc.NewClient(g.Target, g.Options...)
	if err != nil {
		return p.fail("bad target: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, g.Timeout)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: g.Service})
	if err != nil {
		return p.fail("health rpc failed: %v", err)
	}
	if st := resp.GetStatus(); st != healthpb.HealthCheckResponse_SERVING {
		return p.fail("status %s", st)
	}
	return p.pass("serving")
}

func (g *GRPCChecker) Type() CheckType { return CheckTypeGRPC }

// WithService checks one named service instead of the server
func (g *GRPCChecker) WithService(service string) *GRPCChecker {
	g.Service = service
	return g
}

func (g *GRPCChecker) WithTimeout(timeout time.Duration) *GRPCChecker {
	g.Timeout = timeout
	return g
}

func clip(s string) string {
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > maxOutputRune {
		return string(r[:maxOutputRune]) + "..."
	}
	return s
}
