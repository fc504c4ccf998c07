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

const dateLayout = "2006-01-02"

// Holiday is one upcoming public holiday from the Nager.Date feed.
type Holiday struct {
	Date      time.Time
	LocalName string
	Name      string
}

// HolidayService fetches upcoming public holidays for a country. The
// feed is read-only and best-effort: callers get an empty slice on any
// failure.
type HolidayService struct {
	client  *http.Client
	baseURL string
	country string
	limit   int
	logger  core.Logger
}

func NewHolidayService(conf core.Config, logger core.Logger) *HolidayService {
	return &HolidayService{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: conf.Feeds.HolidayBaseURL,
		country: conf.Feeds.CountryCode,
		limit:   conf.Feeds.HolidayLimit,
		logger:  logger,
	}
}

func (svc *HolidayService) Upcoming(ctx context.Context) []Holiday {
	hols, err := svc.fetch(ctx)
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("holiday feed unavailable: %v", err))
		return nil
	}
	if svc.limit > 0 && len(hols) > svc.limit {
		hols = hols[:svc.limit]
	}
	return hols
}

func (svc *HolidayService) fetch(ctx context.Context) ([]Holiday, error) {
	url := fmt.Sprintf("%s/api/v3/NextPublicHolidays/%s", svc.baseURL, svc.country)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "building holiday request")
	}
	resp, err := svc.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetching holidays")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("holiday feed returned %s", resp.Status)
	}

	var raw []struct {
		Date      string `json:"date"`
		LocalName string `json:"localName"`
		Name      string `json:"name"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "decoding holiday feed")
	}

	hols := make([]Holiday, 0, len(raw))
	for _, r := range raw {
		date, err := time.Parse(dateLayout, r.Date)
		if err != nil {
			continue // skip entries with unparseable dates
		}
		hols = append(hols, Holiday{Date: date, LocalName: r.LocalName, Name: r.Name})
	}
	return hols, nil
}
