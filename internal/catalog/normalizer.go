package catalog

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/user/bookscan-service/internal/entity"
	"github.com/user/bookscan-service/pkg/utils"
)

// Normalizer maps the catalog's JSON:API payload onto entity.ScrapedItem and
// applies the post-filters.
type Normalizer struct {
	siteURL  string
	imageURL string
	filters  FilterConfig
	now      func() time.Time
	logger   *zap.Logger
}

// NormalizeReport counts what happened to each product resource.
type NormalizeReport struct {
	Products  int
	Accepted  int
	Malformed int
	Rejected  map[RejectReason]int
}

func NewNormalizer(siteURL, imageURL string, filters FilterConfig, logger *zap.Logger) *Normalizer {
	return &Normalizer{
		siteURL:  siteURL,
		imageURL: imageURL,
		filters:  filters,
		now:      time.Now,
		logger:   logger,
	}
}

func (r *NormalizeReport) merge(o NormalizeReport) {
	r.Products += o.Products
	r.Accepted += o.Accepted
	r.Malformed += o.Malformed
	for reason, n := range o.Rejected {
		r.Rejected[reason] += n
	}
}

// Normalize decodes a search document. A document that is not a JSON:API
// envelope yields a KindMalformed *APIError; individual malformed products
// are skipped and counted.
func (n *Normalizer) Normalize(body []byte) ([]entity.ScrapedItem, NormalizeReport, error) {
	report := NormalizeReport{Rejected: make(map[RejectReason]int)}

	var doc searchDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, report, &APIError{Kind: KindMalformed, Err: fmt.Errorf("decode search document: %w", err)}
	}

	raw := products(doc.Included)
	items := make([]entity.ScrapedItem, 0, len(raw))
	for _, res := range raw {
		report.Products++
		item, err := n.mapProduct(res)
		if err != nil {
			report.Malformed++
			n.logger.Warn("skipping malformed product", zap.String("id", string(res.ID)), zap.Error(err))
			continue
		}
		if reason := n.filters.check(item.Title, item.AuthorName(), item.CurrentPrice, item.Status); reason != RejectNone {
			report.Rejected[reason]++
			n.logger.Debug("product filtered", zap.String("id", item.SourceID), zap.String("title", item.Title), zap.String("reason", string(reason)))
			continue
		}
		report.Accepted++
		items = append(items, *item)
	}
	return items, report, nil
}

func products(included []resource) []resource {
	out := make([]resource, 0, len(included))
	for _, r := range included {
		if r.Type == "product" {
			out = append(out, r)
		}
	}
	return out
}

func (n *Normalizer) mapProduct(res resource) (*entity.ScrapedItem, error) {
	if res.ID == "" {
		return nil, fmt.Errorf("product without id")
	}
	var attrs productAttributes
	if err := json.Unmarshal(res.Attributes, &attrs); err != nil {
		return nil, fmt.Errorf("decode attributes: %w", err)
	}
	if math.IsNaN(float64(attrs.Price)) || attrs.Price < 0 {
		return nil, fmt.Errorf("invalid price %v", attrs.Price)
	}

	item := &entity.ScrapedItem{
		Source:       entity.SourceChitaiGorod,
		SourceID:     string(res.ID),
		Title:        strings.TrimSpace(attrs.Title),
		Author:       optString(authorName(attrs.Authors)),
		Binding:      optTrimmed(attrs.Binding),
		CurrentPrice: float64(attrs.Price),
		URL:          utils.JoinURL(n.siteURL, attrs.URL),
		ImageURL:     optString(utils.JoinURL(n.imageURL, attrs.Picture)),
		Genres:       genres(attrs.Category, attrs.CategoryChain),
		ISBN:         optTrimmed(attrs.ISBN),
		Quantity:     attrs.Quantity,
		Status:       attrs.Status,
		FetchedAt:    n.now().UTC(),
	}
	if attrs.Publisher != nil {
		item.Publisher = optString(attrs.Publisher.Title)
	}
	if attrs.OldPrice != nil && *attrs.OldPrice > 0 {
		v := float64(*attrs.OldPrice)
		item.OriginalPrice = &v
	}
	if attrs.Discount != nil && *attrs.Discount > 0 {
		v := int(*attrs.Discount)
		item.DiscountPercent = &v
	}
	if attrs.Rating != nil {
		if attrs.Rating.Count != nil && *attrs.Rating.Count > 0 {
			v := float64(*attrs.Rating.Count)
			item.Rating = &v
		}
		item.Reviews = attrs.Rating.Reviews
	}
	return item, nil
}

// authorName joins the first listed author's given and family names.
func authorName(authors []productAuthor) string {
	if len(authors) == 0 {
		return ""
	}
	a := authors[0]
	parts := make([]string, 0, 2)
	for _, p := range []string{a.FirstName, a.LastName} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// genres is the category title followed by the category chain minus its
// root, de-duplicated in order.
func genres(category *titled, chain []titled) []string {
	var raw []string
	if category != nil {
		raw = append(raw, category.Title)
	}
	if len(chain) > 1 {
		for _, c := range chain[1:] {
			raw = append(raw, c.Title)
		}
	}
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, g := range raw {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		if _, ok := seen[g]; ok {
			continue
		}
		seen[g] = struct{}{}
		out = append(out, g)
	}
	return out
}

func optString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func optTrimmed(s *string) *string {
	if s == nil {
		return nil
	}
	return optString(*s)
}
