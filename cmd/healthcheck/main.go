// Command healthcheck probes the local casa API and exits non-zero when it is
// unhealthy. It is the container HEALTHCHECK, so it must not depend on curl.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"
)

const defaultAddr = "127.0.0.1:8080"

// healthBody mirrors the fields of the API health response that are checked.
type healthBody struct {
	Status string `json:"status"`
}

func main() {
	os.Exit(check(os.Getenv("CASA_LISTEN_ADDR"), os.Stderr))
}

// check returns 0 when the API answers 200 with status "ok". Failure reasons
// are written to out so they show up in the container health log.
func check(listenAddr string, out io.Writer) int {
	url := fmt.Sprintf("http://%s/api/v1/health", normalizeAddr(listenAddr))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		fmt.Fprintf(out, "healthcheck: %v\n", err)
		return 1
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(out, "healthcheck: %v\n", err)
		return 1
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(out, "healthcheck: %s returned HTTP %d\n", url, resp.StatusCode)
		return 1
	}

	var body healthBody
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body); err != nil {
		fmt.Fprintf(out, "healthcheck: decoding response: %v\n", err)
		return 1
	}
	if body.Status != "ok" {
		fmt.Fprintf(out, "healthcheck: status %q\n", body.Status)
		return 1
	}

	return 0
}

// normalizeAddr maps bind-all listen addresses to loopback, since the check
// runs inside the same container as the server.
func normalizeAddr(raw string) string {
	host, port, err := net.SplitHostPort(raw)
	if err != nil {
		return defaultAddr
	}

	switch host {
	case "", "0.0.0.0":
		host = "127.0.0.1"
	case "::":
		host = "::1"
	}

	return net.JoinHostPort(host, port)
}
