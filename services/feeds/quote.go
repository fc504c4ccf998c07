package feedssvc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/unitrack/unitrack/core"
)

// Quote is the daily motivational quote from the ZenQuotes feed.
type Quote struct {
	Text   string
	Author string
}

// QuoteService fetches the quote of the day. Like the holiday feed it
// is best-effort: a zero Quote on any failure.
type QuoteService struct {
	client  *http.Client
	baseURL string
	logger  core.Logger
}

func NewQuoteService(conf core.Config, logger core.Logger) *QuoteService {
	return &QuoteService{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: conf.Feeds.QuoteBaseURL,
		logger:  logger,
	}
}

func (svc *QuoteService) Today(ctx context.Context) Quote {
	q, err := svc.fetch(ctx)
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("quote feed unavailable: %v", err))
		return Quote{}
	}
	return q
}

func (svc *QuoteService) fetch(ctx context.Context) (Quote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, svc.baseURL+"/api/today", nil)
	if err != nil {
		return Quote{}, errors.Wrap(err, "building quote request")
	}
	resp, err := svc.client.Do(req)
	if err != nil {
		return Quote{}, errors.Wrap(err, "fetching quote")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Quote{}, errors.Errorf("quote feed returned %s", resp.Status)
	}

	var raw []struct {
		Q string `json:"q"`
		A string `json:"a"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return Quote{}, errors.Wrap(err, "decoding quote feed")
	}
	if len(raw) == 0 {
		return Quote{}, errors.New("quote feed returned no entries")
	}
	return Quote{Text: raw[0].Q, Author: raw[0].A}, nil
}
