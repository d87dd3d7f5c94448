package webapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kongor-net/agql/internal/core"
)

const baseURL = "https://api.steampowered.com"

// Client calls Steam Web API JSON endpoints. Unlike the UDP protocol
// families, this is a plain synchronous request/response call over HTTPS —
// it does not go through the Messenger, since there is no correlation
// problem to solve once net/http owns the round trip.
type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
}

// New creates a Client. apiKey is sent on every request; Steam issues one
// per developer account.
func New(apiKey string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		apiKey:     apiKey,
		baseURL:    baseURL,
	}
}

// GetPlayerSummaries fetches public profile summaries for up to 100 Steam
// ids in one call, per the Steam Web API's own batching limit.
func (c *Client) GetPlayerSummaries(ctx context.Context, steamIDs []string) ([]PlayerSummary, error) {
	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("steamids", strings.Join(steamIDs, ","))

	var env playerSummariesEnvelope
	endpoint := c.baseURL + "/ISteamUser/GetPlayerSummaries/v2/?" + q.Encode()
	if err := c.getJSON(ctx, endpoint, &env); err != nil {
		return nil, err
	}
	return env.Response.Players, nil
}

// GetEconSchema fetches the full economy item schema for appID.
func (c *Client) GetEconSchema(ctx context.Context, appID int) ([]EconSchemaItem, error) {
	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("appid", fmt.Sprintf("%d", appID))

	var env econSchemaEnvelope
	endpoint := c.baseURL + "/IEconItems_" + fmt.Sprintf("%d", appID) + "/GetSchema/v1/?" + q.Encode()
	if err := c.getJSON(ctx, endpoint, &env); err != nil {
		return nil, err
	}
	return env.Result.Items, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: build steam web api request: %v", core.ErrTransport, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: steam web api request: %v", core.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: steam web api returned status %d", core.ErrTransport, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode steam web api response: %v", core.ErrMalformedPayload, err)
	}
	return nil
}
