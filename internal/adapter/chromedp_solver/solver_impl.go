package chromedp_solver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/user/bookscan-service/internal/repository"
)

const defaultUserAgent = `Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/141.0.0.0 Safari/537.36`

// Solver passes the anti-bot challenge with a local headless Chrome. It is
// the SOLVER_BACKEND=chromedp alternative to FlareSolverr.
type Solver struct {
	allocCtx    context.Context
	cancelAlloc context.CancelFunc
	timeout     time.Duration
	settle      time.Duration
	logger      *zap.Logger
}

// NewSolver starts one browser allocator shared by every Solve call. proxyURL
// may be empty.
func NewSolver(timeout time.Duration, proxyURL string, logger *zap.Logger) *Solver {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
		chromedp.UserAgent(defaultUserAgent),
	)
	if proxyURL != "" {
		opts = append(opts, chromedp.ProxyServer(proxyURL))
	}
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Solver{
		allocCtx:    allocCtx,
		cancelAlloc: cancel,
		timeout:     timeout,
		settle:      3 * time.Second,
		logger:      logger,
	}
}

func (s *Solver) Name() string { return "chromedp" }

// Close shuts the browser down.
func (s *Solver) Close() {
	s.cancelAlloc()
}

// Solve navigates to targetURL, waits for the challenge script to settle and
// returns the browser's cookie jar and the rendered page.
func (s *Solver) Solve(ctx context.Context, targetURL string) (*repository.SolveResult, error) {
	taskCtx, cancel := chromedp.NewContext(s.allocCtx, chromedp.WithLogf(s.logger.Sugar().Debugf))
	defer cancel()

	taskCtx, cancelTimeout := context.WithTimeout(taskCtx, s.timeout)
	defer cancelTimeout()

	// propagate cancellation of the caller into the browser tab
	stop := context.AfterFunc(ctx, cancelTimeout)
	defer stop()

	var (
		cookies []*network.Cookie
		html    string
	)
	start := time.Now()
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(targetURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(s.settle),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = network.GetCookies().Do(ctx)
			return err
		}),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(taskCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: after %s", repository.ErrSolverTimeout, time.Since(start).Round(time.Second))
		}
		s.logger.Error("browser navigation failed", zap.String("url", targetURL), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", repository.ErrSolverRejected, err)
	}

	s.logger.Info("browser solved challenge",
		zap.String("url", targetURL),
		zap.Int("cookies", len(cookies)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return &repository.SolveResult{Cookies: cookieMap(cookies), HTML: html}, nil
}

// cookieMap flattens the jar. When a name appears for several domains the
// first one wins.
func cookieMap(cookies []*network.Cookie) map[string]string {
	out := make(map[string]string, len(cookies))
	for _, c := range cookies {
		if c == nil || c.Name == "" {
			continue
		}
		if _, ok := out[c.Name]; !ok {
			out[c.Name] = c.Value
		}
	}
	return out
}
