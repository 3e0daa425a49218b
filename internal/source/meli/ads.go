package meli

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"meli_sync/internal/money"
)

// ErrNoAdvertiser is returned when the account has no Product Ads
// advertiser registered.
var ErrNoAdvertiser = errors.New("no advertiser found")

// allowedAdsPeriods are the only accepted day-count windows for the
// ads metrics pass-through.
var allowedAdsPeriods = map[int]bool{7: true, 15: true, 30: true, 60: true, 90: true}

// AllowedAdsPeriod reports whether days is an accepted period. Checked
// before any upstream call is made.
func AllowedAdsPeriod(days int) bool {
	return allowedAdsPeriods[days]
}

const campaignMetrics = "clicks,prints,cost,units_quantity," +
	"direct_amount,indirect_amount,total_amount,roas"

type advertiserResponse struct {
	Advertisers []advertiser `json:"advertisers"`
}

type advertiser struct {
	AdvertiserID int64  `json:"advertiser_id"`
	SiteID       string `json:"site_id"`
}

type campaignSearchResponse struct {
	Results []map[string]any `json:"results"`
}

// AdsDashboard aggregates campaign metrics over the period.
type AdsDashboard struct {
	Investment  float64 `json:"investment"`
	Revenue     float64 `json:"revenue"`
	Sales       float64 `json:"sales"`
	Impressions float64 `json:"impressions"`
	Clicks      float64 `json:"clicks"`
	ROAS        float64 `json:"roas"`
}

// AdsReport is the pass-through response of the ads metrics endpoint:
// raw campaigns plus the aggregated dashboard.
type AdsReport struct {
	PeriodDays int              `json:"period_days"`
	Dashboard  AdsDashboard    `json:"dashboard"`
	Campaigns  []map[string]any `json:"campaigns"`
}

// FetchProductAds fetches the advertiser, its campaigns with metrics
// for the period, and aggregates the dashboard totals. Unlike the sync
// orchestrators this is a pass-through: upstream failures propagate.
func (c *Client) FetchProductAds(ctx context.Context, periodDays int) (*AdsReport, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire token: %w", err)
	}

	params := url.Values{}
	params.Set("product_id", "PADS")

	var advResp advertiserResponse
	res, err := c.getJSON(ctx, token, "/advertising/advertisers", params,
		map[string]string{"Api-Version": "1"}, false, &advResp)
	if res != outcomeOK {
		return nil, fmt.Errorf("fetch advertisers: %w", err)
	}
	if len(advResp.Advertisers) == 0 {
		return nil, ErrNoAdvertiser
	}

	adv := advResp.Advertisers[0]
	dateTo := time.Now()
	dateFrom := dateTo.AddDate(0, 0, -periodDays)

	params = url.Values{}
	params.Set("limit", "50")
	params.Set("offset", "0")
	params.Set("date_from", dateFrom.Format("2006-01-02"))
	params.Set("date_to", dateTo.Format("2006-01-02"))
	params.Set("metrics", campaignMetrics)

	path := fmt.Sprintf("/advertising/%s/advertisers/%s/product_ads/campaigns/search",
		adv.SiteID, strconv.FormatInt(adv.AdvertiserID, 10))

	var campResp campaignSearchResponse
	res, err = c.getJSON(ctx, token, path,
		params, map[string]string{"api-version": "2"}, false, &campResp)
	if res != outcomeOK {
		return nil, fmt.Errorf("fetch campaigns: %w", err)
	}

	var dash AdsDashboard
	for _, campaign := range campResp.Results {
		m, _ := campaign["metrics"].(map[string]any)
		dash.Investment += money.ToMoney(m["cost"], 0)
		dash.Revenue += money.ToMoney(m["total_amount"], 0)
		dash.Sales += money.ToMoney(m["units_quantity"], 0)
		dash.Impressions += money.ToMoney(m["prints"], 0)
		dash.Clicks += money.ToMoney(m["clicks"], 0)
	}
	if dash.Investment > 0 {
		dash.ROAS = money.Round2(dash.Revenue / dash.Investment)
	}
	dash.Investment = money.Round2(dash.Investment)
	dash.Revenue = money.Round2(dash.Revenue)

	return &AdsReport{
		PeriodDays: periodDays,
		Dashboard:  dash,
		Campaigns:  campResp.Results,
	}, nil
}
