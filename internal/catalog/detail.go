package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/user/bookscan-service/internal/entity"
)

// ProductDetails are the characteristics read from a product page.
type ProductDetails struct {
	Publisher string
	Binding   string
	ISBN      string
	Genres    []string
}

// FetchHTML loads a site page with the same politeness and user-agent
// rotation as API calls. It makes a single attempt.
func (c *Client) FetchHTML(ctx context.Context, pageURL string) (string, error) {
	if err := c.politeness(ctx); err != nil {
		return "", &APIError{Kind: KindTransient, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", &APIError{Kind: KindTransient, Err: err}
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "ru,en;q=0.9")
	req.Header.Set("User-Agent", c.userAgent())

	c.recordAttempt()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordResult(false)
		return "", &APIError{Kind: KindTransient, Err: err}
	}
	defer resp.Body.Close()
	c.recordResult(resp.StatusCode == http.StatusOK)
	if resp.StatusCode != http.StatusOK {
		return "", &APIError{Kind: KindTransient, Status: resp.StatusCode, Err: fmt.Errorf("fetch %s", pageURL)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", &APIError{Kind: KindTransient, Err: fmt.Errorf("read page: %w", err)}
	}
	return string(body), nil
}

// EnrichDetails fills the item's missing publisher, binding, ISBN and genres
// from its product page. Failures are logged and leave the item unchanged.
func (c *Client) EnrichDetails(ctx context.Context, item *entity.ScrapedItem) {
	if item.URL == "" {
		return
	}
	html, err := c.FetchHTML(ctx, item.URL)
	if err != nil {
		c.logger.Warn("detail page fetch failed", zap.String("url", item.URL), zap.Error(err))
		return
	}
	details, err := ExtractDetails(html)
	if err != nil {
		c.logger.Warn("detail page parse failed", zap.String("url", item.URL), zap.Error(err))
		return
	}
	details.apply(item)
}

// ExtractDetails reads the characteristics block and breadcrumbs of a
// product page.
func ExtractDetails(html string) (*ProductDetails, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	details := &ProductDetails{}
	doc.Find(".product-properties-item, .product-characteristic__item").Each(func(i int, s *goquery.Selection) {
		label := strings.ToLower(cleanText(s.Find(".product-properties-item__title, .product-characteristic__title").First().Text()))
		value := cleanText(s.Find(".product-properties-item__content, .product-characteristic__value").First().Text())
		if value == "" {
			return
		}
		switch {
		case strings.Contains(label, "издательство"):
			details.Publisher = value
		case strings.Contains(label, "переплет"), strings.Contains(label, "переплёт"), strings.Contains(label, "обложк"):
			details.Binding = value
		case strings.Contains(label, "isbn"):
			details.ISBN = value
		}
	})

	if details.ISBN == "" {
		if isbn, ok := doc.Find(`[itemprop="isbn"]`).First().Attr("content"); ok {
			details.ISBN = strings.TrimSpace(isbn)
		}
	}

	doc.Find(".product-breadcrumbs a, .breadcrumbs a").Each(func(i int, s *goquery.Selection) {
		title := cleanText(s.Text())
		if title == "" || strings.EqualFold(title, "главная") || strings.EqualFold(title, "книги") {
			return
		}
		details.Genres = append(details.Genres, title)
	})
	return details, nil
}

func (d *ProductDetails) apply(item *entity.ScrapedItem) {
	if item.Publisher == nil {
		item.Publisher = optString(d.Publisher)
	}
	if item.Binding == nil {
		item.Binding = optString(d.Binding)
	}
	if item.ISBN == nil {
		item.ISBN = optString(d.ISBN)
	}
	if len(item.Genres) == 0 && len(d.Genres) > 0 {
		item.Genres = d.Genres
	}
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
