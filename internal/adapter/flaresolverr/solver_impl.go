package flaresolverr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/user/bookscan-service/internal/repository"
)

type solveRequest struct {
	Cmd          string `json:"cmd"`
	URL          string `json:"url"`
	MaxTimeout   int    `json:"maxTimeout"`
	DisableMedia bool   `json:"disableMedia"`
}

type solveResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Solution struct {
		URL      string `json:"url"`
		Status   int    `json:"status"`
		Response string `json:"response"`
		Cookies  []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"cookies"`
	} `json:"solution"`
}

// Solver sends pages through a FlareSolverr instance.
type Solver struct {
	endpoint string
	timeout  time.Duration
	client   *http.Client
	logger   *zap.Logger
}

// NewSolver creates a Solver. timeout bounds the whole round trip; the
// browser-side budget sent to FlareSolverr is two thirds of it.
func NewSolver(endpoint string, timeout time.Duration, logger *zap.Logger) *Solver {
	return &Solver{
		endpoint: endpoint,
		timeout:  timeout,
		client:   &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		logger:   logger,
	}
}

func (s *Solver) Name() string { return "flaresolverr" }

// Solve renders targetURL and returns its cookie jar and HTML.
func (s *Solver) Solve(ctx context.Context, targetURL string) (*repository.SolveResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	payload, err := json.Marshal(solveRequest{
		Cmd:          "request.get",
		URL:          targetURL,
		MaxTimeout:   int((s.timeout * 2 / 3).Milliseconds()),
		DisableMedia: true,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	s.logger.Info("sending page through flaresolverr", zap.String("endpoint", s.endpoint), zap.String("url", targetURL))
	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: after %s", repository.ErrSolverTimeout, time.Since(start).Round(time.Second))
		}
		return nil, fmt.Errorf("flaresolverr request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: flaresolverr returned status %d", repository.ErrSolverRejected, resp.StatusCode)
	}

	var out solveResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if isTimeout(err) {
			return nil, repository.ErrSolverTimeout
		}
		return nil, fmt.Errorf("%w: decode response: %v", repository.ErrSolverRejected, err)
	}
	if out.Status != "ok" {
		return nil, fmt.Errorf("%w: status %q: %s", repository.ErrSolverRejected, out.Status, out.Message)
	}

	result := &repository.SolveResult{
		Cookies: make(map[string]string, len(out.Solution.Cookies)),
		HTML:    out.Solution.Response,
	}
	for _, c := range out.Solution.Cookies {
		result.Cookies[c.Name] = c.Value
	}
	s.logger.Info("flaresolverr solved challenge",
		zap.Int("cookies", len(result.Cookies)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
