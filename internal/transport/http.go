package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HTTPServer exposes a worker.Server's Serve over a single POST route,
// grounded on the teacher's gin-based HTTP surface (server/routes.go).
// It carries the binary RPC payload as an opaque request/response body.
type HTTPServer struct {
	engine *gin.Engine
}

// NewHTTPServer wires server.Serve to POST /rpc.
func NewHTTPServer(server Server) *HTTPServer {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.POST("/rpc", func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(http.StatusBadRequest)
			return
		}
		resp, err := server.Serve(body)
		if err != nil {
			c.String(http.StatusInternalServerError, "%v", err)
			return
		}
		c.Data(http.StatusOK, "application/octet-stream", resp)
	})
	return &HTTPServer{engine: r}
}

// Run blocks, serving addr (e.g. ":9100").
func (h *HTTPServer) Run(addr string) error {
	return h.engine.Run(addr)
}

// HTTPPoster implements Poster by POSTing the request bytes to a fixed
// base URL per worker id and delivering the response body to sink.
type HTTPPoster struct {
	client   *http.Client
	baseURLs map[string]string
	sinks    map[string]ReplySink
}

// NewHTTPPoster builds a poster over baseURLs (workerID -> "http://host:port").
func NewHTTPPoster(baseURLs map[string]string) *HTTPPoster {
	return &HTTPPoster{
		client:   &http.Client{Timeout: 30 * time.Second},
		baseURLs: baseURLs,
		sinks:    make(map[string]ReplySink),
	}
}

// Register associates workerID with the sink its replies are delivered to.
func (p *HTTPPoster) Register(workerID string, sink ReplySink) {
	p.sinks[workerID] = sink
}

func (p *HTTPPoster) Post(ctx context.Context, workerID string, req []byte) error {
	base, ok := p.baseURLs[workerID]
	if !ok {
		return fmt.Errorf("transport: unknown worker %q", workerID)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/rpc", bytes.NewReader(req))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/octet-stream")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("transport: worker %q: status %d: %s", workerID, resp.StatusCode, body)
	}

	sink, ok := p.sinks[workerID]
	if !ok {
		return fmt.Errorf("transport: no reply sink registered for %q", workerID)
	}
	sink.Deliver(body)
	return nil
}
