package utils

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

// LeadSearchParams select one page of leads from the provider API.
type LeadSearchParams struct {
	StartDate  string // YYYY-MM-DD
	EndDate    string // YYYY-MM-DD
	CampaignID string
	Offset     int
	Limit      int
}

// LeadPage is one page of provider results.
type LeadPage struct {
	Entries []map[string]interface{}
	Offset  int
	Total   int
	HasMore bool
}

type leadSearchResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    struct {
		Entries []map[string]interface{} `json:"entries"`
		Offset  int                      `json:"offset"`
		Total   int                      `json:"total"`
	} `json:"data"`
	HasMore bool `json:"hasMore"`
}

// ConvosoClient talks to the Convoso REST API. Each call carries a bounded
// timeout; exceeding it surfaces as a retryable upstream error. Retry and
// backoff policy live in the sync engine, not here.
type ConvosoClient struct {
	BaseURL string
	Timeout time.Duration
	Logger  *logrus.Entry

	http *fasthttp.Client
}

func NewConvosoClient(baseURL string, timeout time.Duration, logger *logrus.Entry) *ConvosoClient {
	return &ConvosoClient{
		BaseURL: baseURL,
		Timeout: timeout,
		Logger:  logger,
		http:    &fasthttp.Client{},
	}
}

func (cc *ConvosoClient) get(path string, query url.Values, out interface{}) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(cc.BaseURL + path + "?" + query.Encode())
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")

	if err := cc.http.DoTimeout(req, resp, cc.Timeout); err != nil {
		return ErrUpstreamAPI(err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return ErrUpstreamAPI(fmt.Errorf("unexpected status %d from %s", resp.StatusCode(), path))
	}

	// Body is only valid until the response is released.
	body := append([]byte{}, resp.Body()...)
	if err := json.Unmarshal(body, out); err != nil {
		return ErrUpstreamAPI(fmt.Errorf("malformed response from %s: %w", path, err))
	}
	return nil
}

// FetchLeads pulls one page of leads at the given offset.
func (cc *ConvosoClient) FetchLeads(apiKey string, params LeadSearchParams) (*LeadPage, error) {
	query := url.Values{}
	query.Set("auth_token", apiKey)
	query.Set("offset", strconv.Itoa(params.Offset))
	query.Set("limit", strconv.Itoa(params.Limit))
	if params.StartDate != "" {
		query.Set("start_date", params.StartDate)
	}
	if params.EndDate != "" {
		query.Set("end_date", params.EndDate)
	}
	if params.CampaignID != "" {
		query.Set("campaign_id", params.CampaignID)
	}

	var parsed leadSearchResponse
	if err := cc.get("/leads/search", query, &parsed); err != nil {
		return nil, err
	}
	if !parsed.Success {
		return nil, ErrUpstreamAPI(fmt.Errorf("provider rejected request: %s", parsed.Message))
	}

	page := &LeadPage{
		Entries: parsed.Data.Entries,
		Offset:  parsed.Data.Offset,
		Total:   parsed.Data.Total,
		HasMore: parsed.HasMore,
	}
	cc.Logger.WithFields(logrus.Fields{
		"offset":  page.Offset,
		"entries": len(page.Entries),
		"hasMore": page.HasMore,
	}).Debug("fetched lead page")
	return page, nil
}

// ValidateCredentials performs a minimal authenticated call to prove the API
// key works before it is persisted.
func (cc *ConvosoClient) ValidateCredentials(apiKey string) error {
	query := url.Values{}
	query.Set("auth_token", apiKey)
	query.Set("limit", "1")

	var parsed leadSearchResponse
	if err := cc.get("/leads/search", query, &parsed); err != nil {
		return err
	}
	if !parsed.Success {
		return ErrUpstreamAPI(fmt.Errorf("credentials rejected: %s", parsed.Message))
	}
	return nil
}
