// Package source fetches raw payloads from the Steam store, the Steam Web
// API and SteamSpy. Every fetch returns a Result and never an error.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/masahif/steamharvest/internal/catalog"
	"github.com/masahif/steamharvest/internal/config"
)

// Endpoint labels used in metrics and logs
const (
	endpointAppList     = "app_list"
	endpointAppDetails  = "app_details"
	endpointSteamSpy    = "steamspy"
	endpointSchema      = "achievement_schema"
	endpointGlobalRates = "global_rates"
	endpointReviews     = "reviews"
)

// ErrNoAPIKey is reported for Web API calls made without a key
var ErrNoAPIKey = errors.New("steam web api key is not configured")

// Client is the Source Client
type Client struct {
	cfg    config.SteamConfig
	apiKey string
	http   *HTTPClient
	logger *slog.Logger

	mu       sync.Mutex
	universe []int64
}

// NewClient builds a client with a per-host rate limiter taken from
// cfg.HostDelays
func NewClient(cfg config.SteamConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	limiter := NewRateLimiter(0)
	for _, hd := range cfg.HostDelays {
		limiter.SetHostDelay(hd.Host, hd.Delay)
	}

	return &Client{
		cfg:    cfg,
		apiKey: cfg.GetAPIKey(),
		http:   NewHTTPClient(cfg.UserAgent, cfg.RequestTimeout, limiter, logger),
		logger: logger,
	}
}

// Close releases idle connections
func (c *Client) Close() {
	c.http.Close()
}

type appListResponse struct {
	AppList struct {
		Apps []struct {
			AppID catalog.FlexInt `json:"appid"`
		} `json:"apps"`
	} `json:"applist"`
}

// AppIDs returns the identifier universe. The first successful result is
// kept for the rest of the run and written to the universe cache file.
func (c *Client) AppIDs(ctx context.Context) Result[[]int64] {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.universe != nil {
		return found(c.universe)
	}

	if path := c.cfg.UniverseCachePath; path != "" {
		ids, err := loadUniverse(path)
		switch {
		case err == nil && len(ids) > 0:
			c.logger.Info("Loaded app list from cache", "path", path, "count", len(ids))
			c.universe = ids
			return found(ids)
		case err != nil && !isNotExist(err):
			c.logger.Warn("Ignoring unreadable app list cache", "path", path, "error", err)
		}
	}

	c.logger.Info("Requesting full app list")
	var payload appListResponse
	status, err := c.http.GetJSON(ctx, endpointAppList, c.cfg.Endpoints.AppList, nil, &payload)
	if status != Found {
		c.logFailure(endpointAppList, 0, status, err)
		return failed[[]int64](status, err)
	}

	ids := make([]int64, 0, len(payload.AppList.Apps))
	seen := make(map[int64]bool, len(payload.AppList.Apps))
	for _, app := range payload.AppList.Apps {
		id := int64(app.AppID)
		if id <= 0 || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return notFound[[]int64]()
	}

	if path := c.cfg.UniverseCachePath; path != "" {
		if err := saveUniverse(path, ids); err != nil {
			c.logger.Warn("Failed to write app list cache", "path", path, "error", err)
		} else {
			c.logger.Info("Saved app list to cache", "path", path, "count", len(ids))
		}
	}

	c.universe = ids
	return found(ids)
}

type appDetailsEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

// AppDetails fetches the store payload of one app
func (c *Client) AppDetails(ctx context.Context, id int64) Result[*catalog.RawApp] {
	key := strconv.FormatInt(id, 10)
	params := url.Values{}
	params.Set("appids", key)
	if c.cfg.Country != "" {
		params.Set("cc", c.cfg.Country)
	}
	if c.cfg.Language != "" {
		params.Set("l", c.cfg.Language)
	}

	var payload map[string]appDetailsEnvelope
	status, err := c.http.GetJSON(ctx, endpointAppDetails, c.cfg.Endpoints.AppDetails, params, &payload)
	if status != Found {
		c.logFailure(endpointAppDetails, id, status, err)
		return failed[*catalog.RawApp](status, err)
	}

	envelope, ok := payload[key]
	if !ok || !envelope.Success || len(envelope.Data) == 0 {
		return notFound[*catalog.RawApp]()
	}

	var raw catalog.RawApp
	if err := json.Unmarshal(envelope.Data, &raw); err != nil {
		err = fmt.Errorf("failed to decode app data: %w", err)
		c.logFailure(endpointAppDetails, id, Malformed, err)
		return failed[*catalog.RawApp](Malformed, err)
	}
	return found(&raw)
}

// Enrichment fetches the SteamSpy payload of one app. Placeholder
// responses without a developer are reported as NotFound.
func (c *Client) Enrichment(ctx context.Context, id int64) Result[*catalog.RawEnrichment] {
	params := url.Values{}
	params.Set("request", "appdetails")
	params.Set("appid", strconv.FormatInt(id, 10))

	var raw catalog.RawEnrichment
	status, err := c.http.GetJSON(ctx, endpointSteamSpy, c.cfg.Endpoints.SteamSpy, params, &raw)
	if status != Found {
		c.logFailure(endpointSteamSpy, id, status, err)
		return failed[*catalog.RawEnrichment](status, err)
	}
	if strings.TrimSpace(raw.Developer) == "" {
		return notFound[*catalog.RawEnrichment]()
	}
	return found(&raw)
}

type schemaResponse struct {
	Game struct {
		AvailableGameStats *struct {
			Achievements []catalog.RawAchievement `json:"achievements"`
		} `json:"availableGameStats"`
	} `json:"game"`
}

// AchievementSchema fetches the achievement definitions of one app
func (c *Client) AchievementSchema(ctx context.Context, id int64) Result[[]catalog.RawAchievement] {
	if c.apiKey == "" {
		return failed[[]catalog.RawAchievement](Failed, ErrNoAPIKey)
	}

	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("appid", strconv.FormatInt(id, 10))
	if c.cfg.Language != "" {
		params.Set("l", c.cfg.Language)
	}

	var payload schemaResponse
	status, err := c.http.GetJSON(ctx, endpointSchema, c.cfg.Endpoints.Schema, params, &payload)
	if status != Found {
		c.logFailure(endpointSchema, id, status, err)
		return failed[[]catalog.RawAchievement](status, err)
	}

	stats := payload.Game.AvailableGameStats
	if stats == nil || len(stats.Achievements) == 0 {
		return notFound[[]catalog.RawAchievement]()
	}
	return found(stats.Achievements)
}

type globalRatesResponse struct {
	AchievementPercentages struct {
		Achievements []struct {
			Name    string            `json:"name"`
			Percent catalog.FlexFloat `json:"percent"`
		} `json:"achievements"`
	} `json:"achievementpercentages"`
}

// GlobalAchievementRates fetches completion percentages keyed by api name
func (c *Client) GlobalAchievementRates(ctx context.Context, id int64) Result[map[string]float64] {
	params := url.Values{}
	params.Set("gameid", strconv.FormatInt(id, 10))

	var payload globalRatesResponse
	status, err := c.http.GetJSON(ctx, endpointGlobalRates, c.cfg.Endpoints.GlobalRates, params, &payload)
	if status != Found {
		c.logFailure(endpointGlobalRates, id, status, err)
		return failed[map[string]float64](status, err)
	}

	items := payload.AchievementPercentages.Achievements
	if len(items) == 0 {
		return notFound[map[string]float64]()
	}
	rates := make(map[string]float64, len(items))
	for _, item := range items {
		rates[item.Name] = float64(item.Percent)
	}
	return found(rates)
}

type reviewsResponse struct {
	Success catalog.FlexInt     `json:"success"`
	Reviews []catalog.RawReview `json:"reviews"`
}

// Reviews fetches the first page of English reviews of one app
func (c *Client) Reviews(ctx context.Context, id int64) Result[[]catalog.RawReview] {
	params := url.Values{}
	params.Set("json", "1")
	params.Set("num_per_page", strconv.Itoa(c.cfg.Endpoints.ReviewsPerApp))
	params.Set("language", "english")
	params.Set("filter_offtopic_activity", "1")
	params.Set("filter_user_generated_content", "1")

	endpoint := strings.TrimSuffix(c.cfg.Endpoints.Reviews, "/") + "/" + strconv.FormatInt(id, 10)

	var payload reviewsResponse
	status, err := c.http.GetJSON(ctx, endpointReviews, endpoint, params, &payload)
	if status != Found {
		c.logFailure(endpointReviews, id, status, err)
		return failed[[]catalog.RawReview](status, err)
	}
	if payload.Success != 1 || len(payload.Reviews) == 0 {
		return notFound[[]catalog.RawReview]()
	}
	return found(payload.Reviews)
}

func (c *Client) logFailure(endpoint string, id int64, status Status, err error) {
	if status == NotFound {
		return
	}
	c.logger.Warn("Source request failed",
		"endpoint", endpoint,
		"app_id", id,
		"status", status.String(),
		"error", err)
}
