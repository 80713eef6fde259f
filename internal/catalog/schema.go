package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// searchDocument is the JSON:API envelope of /search/product. Only the
// included resources carry product data.
type searchDocument struct {
	Included []resource `json:"included"`
}

type resource struct {
	ID         flexString      `json:"id"`
	Type       string          `json:"type"`
	Attributes json.RawMessage `json:"attributes"`
}

type productAttributes struct {
	Title         string          `json:"title"`
	Authors       []productAuthor `json:"authors"`
	Price         flexFloat       `json:"price"`
	OldPrice      *flexFloat      `json:"oldPrice"`
	Discount      *flexFloat      `json:"discount"`
	Category      *titled         `json:"category"`
	CategoryChain []titled        `json:"categoryChain"`
	Rating        *productRating  `json:"rating"`
	URL           string          `json:"url"`
	Picture       string          `json:"picture"`
	Publisher     *titled         `json:"publisher"`
	Binding       *string         `json:"binding"`
	Quantity      *int            `json:"quantity"`
	Status        *string         `json:"status"`
	ISBN          *string         `json:"isbn"`
}

type productAuthor struct {
	FirstName  string `json:"firstName"`
	MiddleName string `json:"middleName"`
	LastName   string `json:"lastName"`
}

type productRating struct {
	Count   *flexFloat `json:"count"`
	Reviews *int       `json:"reviews"`
}

// titled accepts either a bare string or an object with a "title" field.
type titled struct {
	Title string
}

func (t *titled) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &t.Title)
	}
	var obj struct {
		Title string `json:"title"`
		Name  string `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	t.Title = obj.Title
	if t.Title == "" {
		t.Title = obj.Name
	}
	return nil
}

// flexString accepts JSON strings and numbers.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id %s: %w", data, err)
	}
	*s = flexString(n.String())
	return nil
}

// flexFloat accepts JSON numbers and numeric strings ("1 299,00" included).
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		raw = strings.NewReplacer(" ", "", "\u00a0", "", ",", ".").Replace(raw)
		if raw == "" {
			return nil
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("number %q: %w", raw, err)
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}
