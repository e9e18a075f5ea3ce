// Command healthcheck probes the local API's /healthz endpoint and exits
// non-zero when it is unreachable or unhealthy. It is used as the container
// HEALTHCHECK.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

// healthURL derives the probe URL from HTTP_ADDR (":8080" by default).
func healthURL() string {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr + "/healthz"
}

func check(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("failed to close response body: %v", err)
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return &statusError{code: resp.StatusCode}
	}
	return nil
}

type statusError struct{ code int }

func (e *statusError) Error() string { return "unhealthy: HTTP " + http.StatusText(e.code) }

func main() {
	client := &http.Client{Timeout: 3 * time.Second}
	if err := check(context.Background(), client, healthURL()); err != nil {
		log.Print(err)
		os.Exit(1)
	}
}
