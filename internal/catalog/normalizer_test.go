package catalog

import (
	"errors"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"
)

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	body, err := os.ReadFile("testdata/" + name)
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return body
}

func newTestNormalizer() *Normalizer {
	n := NewNormalizer("https://shop.test", "https://img.test", DefaultFilters(), zap.NewNop())
	n.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return n
}

func TestNormalizeFixture(t *testing.T) {
	items, report, err := newTestNormalizer().Normalize(loadFixture(t, "search_dune.json"))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2: %+v", len(items), items)
	}
	if report.Products != 7 || report.Accepted != 2 || report.Malformed != 1 {
		t.Fatalf("report = %+v", report)
	}
	wantRejected := map[RejectReason]int{RejectExcluded: 1, RejectPrice: 1, RejectNonBook: 1, RejectStatus: 1}
	for reason, n := range wantRejected {
		if report.Rejected[reason] != n {
			t.Errorf("rejected[%s] = %d, want %d", reason, report.Rejected[reason], n)
		}
	}

	dune := items[0]
	if dune.SourceID != "3046783" || dune.Source != "chitai-gorod" {
		t.Fatalf("natural key = %s/%s", dune.Source, dune.SourceID)
	}
	if dune.AuthorName() != "Фрэнк Герберт" {
		t.Errorf("author = %q", dune.AuthorName())
	}
	if dune.CurrentPrice != 899 || dune.OriginalPrice == nil || *dune.OriginalPrice != 1199 {
		t.Errorf("prices = %v / %v", dune.CurrentPrice, dune.OriginalPrice)
	}
	if dune.Discount() != 25 {
		t.Errorf("discount = %d", dune.Discount())
	}
	if dune.URL != "https://shop.test/product/dyuna-3046783" {
		t.Errorf("url = %s", dune.URL)
	}
	if dune.ImageURL == nil || *dune.ImageURL != "https://img.test/upload/catalog/dyuna.jpg" {
		t.Errorf("image = %v", dune.ImageURL)
	}
	if len(dune.Genres) != 2 || dune.Genres[0] != "Фантастика" || dune.Genres[1] != "Художественная литература" {
		t.Errorf("genres = %v", dune.Genres)
	}
	if dune.Rating == nil || *dune.Rating != 4.8 || dune.Reviews == nil || *dune.Reviews != 120 {
		t.Errorf("rating = %v reviews = %v", dune.Rating, dune.Reviews)
	}
	if dune.Publisher == nil || *dune.Publisher != "АСТ" {
		t.Errorf("publisher = %v", dune.Publisher)
	}
	if dune.Quantity == nil || *dune.Quantity != 15 {
		t.Errorf("quantity = %v", dune.Quantity)
	}
	if !dune.FetchedAt.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Errorf("fetched_at = %v", dune.FetchedAt)
	}

	heretics := items[1]
	if heretics.CurrentPrice != 649.5 {
		t.Errorf("string price = %v", heretics.CurrentPrice)
	}
	if heretics.URL != "https://shop.test/product/heretics-7" {
		t.Errorf("url = %s", heretics.URL)
	}
	if heretics.ImageURL == nil || *heretics.ImageURL != "https://cdn.img-gorod.ru/heretics.jpg" {
		t.Errorf("absolute image was rewritten: %v", heretics.ImageURL)
	}
	if len(heretics.Genres) != 1 || heretics.Genres[0] != "Фантастика" {
		t.Errorf("genres = %v", heretics.Genres)
	}
	if heretics.OriginalPrice != nil || heretics.DiscountPercent != nil {
		t.Errorf("optional fields should stay absent")
	}
}

func TestNormalizeRejectsNonEnvelope(t *testing.T) {
	_, _, err := newTestNormalizer().Normalize([]byte(`[1, 2, 3]`))
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
}

func TestFilters(t *testing.T) {
	canBuy := "canBuy"
	soldOut := "notAvailable"
	tests := []struct {
		name   string
		title  string
		author string
		price  float64
		status *string
		want   RejectReason
	}{
		{"plain book", "Дюна", "Фрэнк Герберт", 899, &canBuy, RejectNone},
		{"coloring book with age range", "Раскраска для малышей 3-5 лет", "", 250, nil, RejectExcluded},
		{"age plus pattern", "Сказки на ночь 6+ лет", "", 400, nil, RejectExcluded},
		{"keyword in author", "Большая книга", "Издательство для детей", 400, nil, RejectExcluded},
		{"below price floor", "Дюна", "", 30, nil, RejectPrice},
		{"above price ceiling", "Подарочное издание", "", 12000, nil, RejectPrice},
		{"toy", "Мягкая игрушка Кот", "", 990, nil, RejectNonBook},
		{"notebook", "Блокнот в клетку", "", 199, nil, RejectNonBook},
		{"status not sellable", "Дюна", "", 899, &soldOut, RejectStatus},
		{"empty title", "  ", "", 100, nil, RejectMissing},
	}
	f := DefaultFilters()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.check(tt.title, tt.author, tt.price, tt.status); got != tt.want {
				t.Fatalf("check(%q) = %q, want %q", tt.title, got, tt.want)
			}
		})
	}
}
