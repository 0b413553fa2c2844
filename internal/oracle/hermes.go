package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"lending/internal/errs"

	"github.com/shopspring/decimal"
)

// DefaultHermesURL is the public Pyth Hermes endpoint.
const DefaultHermesURL = "https://hermes.pyth.network"

// HermesSource reads the latest Pyth price update over HTTP.
type HermesSource struct {
	baseURL string
	client  *http.Client
}

func NewHermesSource(baseURL string, client *http.Client) *HermesSource {
	if baseURL == "" {
		baseURL = DefaultHermesURL
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &HermesSource{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type hermesPrice struct {
	Price       string `json:"price"`
	Conf        string `json:"conf"`
	Expo        int32  `json:"expo"`
	PublishTime int64  `json:"publish_time"`
}

type hermesResponse struct {
	Parsed []struct {
		ID    string      `json:"id"`
		Price hermesPrice `json:"price"`
	} `json:"parsed"`
}

func (s *HermesSource) Latest(ctx context.Context, feed FeedID) (Quote, error) {
	query := url.Values{}
	query.Add("ids[]", feed.Hex())
	query.Set("parsed", "true")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/v2/updates/price/latest?"+query.Encode(), nil)
	if err != nil {
		return Quote{}, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("hermes request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return Quote{}, fmt.Errorf("feed %s: %w", feed, errs.ErrFeedNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Quote{}, fmt.Errorf("hermes status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var payload hermesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Quote{}, fmt.Errorf("hermes decode: %w", err)
	}
	for _, entry := range payload.Parsed {
		if !strings.EqualFold(strings.TrimPrefix(entry.ID, "0x"), feed.Hex()) {
			continue
		}
		return entry.Price.quote()
	}
	return Quote{}, fmt.Errorf("feed %s: %w", feed, errs.ErrFeedNotFound)
}

func (p hermesPrice) quote() (Quote, error) {
	price, err := decimal.NewFromString(p.Price)
	if err != nil {
		return Quote{}, fmt.Errorf("hermes price %q: %w", p.Price, errs.ErrInvalidPrice)
	}
	conf := decimal.Zero
	if p.Conf != "" {
		conf, err = decimal.NewFromString(p.Conf)
		if err != nil {
			return Quote{}, fmt.Errorf("hermes conf %q: %w", p.Conf, errs.ErrInvalidPrice)
		}
	}
	return Quote{
		Price:       price.Shift(p.Expo),
		Confidence:  conf.Shift(p.Expo),
		PublishTime: time.Unix(p.PublishTime, 0).UTC(),
	}, nil
}
