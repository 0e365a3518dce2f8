package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
)

const (
	defaultAddr = "127.0.0.1:8990"
	probeBudget = 2 * time.Second
)

func main() {
	os.Exit(check(os.Stderr))
}

// check probes /api/health and returns the process exit code. A "degraded"
// pool counts as healthy unless CREDPOOL_HEALTHCHECK_STRICT is true, in which
// case the container is reported unhealthy while no credential is available.
func check(stderr io.Writer) int {
	addr := normalizeAddr(os.Getenv("CREDPOOL_LISTEN_ADDR"))
	strict, _ := strconv.ParseBool(os.Getenv("CREDPOOL_HEALTHCHECK_STRICT"))

	ctx, cancel := context.WithTimeout(context.Background(), probeBudget)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/api/health", nil)
	if err != nil {
		fmt.Fprintf(stderr, "build request: %v\n", err)
		return 1
	}

	resp, err := (&http.Client{Timeout: probeBudget}).Do(req)
	if err != nil {
		fmt.Fprintf(stderr, "probe %s: %v\n", addr, err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(stderr, "probe %s: status %d\n", addr, resp.StatusCode)
		return 1
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		fmt.Fprintf(stderr, "read health body: %v\n", err)
		return 1
	}

	switch status := gjson.GetBytes(body, "status").String(); status {
	case "ok":
		return 0
	case "degraded":
		if strict {
			fmt.Fprintln(stderr, "pool degraded: no available credential")
			return 1
		}
		return 0
	default:
		fmt.Fprintf(stderr, "unexpected health status %q\n", status)
		return 1
	}
}

// normalizeAddr points the probe at loopback when the server binds every
// interface, since the healthcheck runs inside the same container.
func normalizeAddr(raw string) string {
	if raw == "" {
		return defaultAddr
	}

	host, port, err := net.SplitHostPort(raw)
	if err != nil {
		return defaultAddr
	}

	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}

	return net.JoinHostPort(host, port)
}
