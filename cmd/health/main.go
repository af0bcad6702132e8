// Standalone liveness probe endpoint served over fasthttp, for
// deployments that colocate a lean probe next to the main server. The
// handler is written against the engine-neutral httpx surface, so it is
// the same code the main server mounts at /healthz.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"time"

	"github.com/valyala/fasthttp"

	"chatrelay/pkg/httpx"
)

func main() {
	addr := flag.String("addr", ":8081", "listen address")
	ver := flag.String("version", "dev", "version string to return")
	flag.Parse()

	h := func(w httpx.ResponseWriter, r *httpx.Request) {
		switch r.Path {
		case "/health", "/healthz":
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(fmt.Sprintf("{\"status\":\"ok\",\"version\":\"%s\"}", *ver)))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}

	fmt.Printf("health probe listening on %s\n", *addr)
	srv := &fasthttp.Server{
		Handler:            httpx.FastHTTPAdapter(h),
		Name:               "chatrelay-health",
		ReadTimeout:        5 * time.Second,
		WriteTimeout:       5 * time.Second,
		MaxRequestBodySize: 1 << 20,
	}
	if err := srv.ListenAndServe(*addr); err != nil {
		fmt.Printf("health server exit: %v\n", err)
	}
}
