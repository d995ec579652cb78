// Package loki implements a log source provider over Loki's HTTP range
// query API.
package loki

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/crimson-sun/sawmill/internal/model"
	"github.com/crimson-sun/sawmill/internal/source"
	"github.com/crimson-sun/sawmill/internal/source/httpclient"
)

const defaultEndpoint = "http://localhost:3100"
const defaultLimit = 1000

func init() {
	source.Register("loki", func() source.Source {
		return &Source{}
	})
}

// Source implements the source.Source interface for Loki's query_range API.
type Source struct{}

// Response types (unexported).

type queryResponse struct {
	Status string    `json:"status"`
	Data   queryData `json:"data"`
}

type queryData struct {
	ResultType string   `json:"resultType"`
	Result     []stream `json:"result"`
}

type stream struct {
	Labels map[string]string `json:"stream"`
	Values [][2]string       `json:"values"` // [unix-nanos, line] pairs
}

// Fetch runs one range query and returns the matched lines in timestamp
// order. Loki returns entries grouped per stream, so results are merged and
// re-sorted before returning.
func (s *Source) Fetch(ctx context.Context, cfg source.Config, params source.FetchParams) ([]model.RawLine, error) {
	if cfg.Query == "" {
		return nil, fmt.Errorf("loki source: missing query selector")
	}
	baseURL := cfg.Endpoint
	if baseURL == "" {
		baseURL = defaultEndpoint
	}

	end := params.End
	if end.IsZero() {
		end = time.Now()
	}
	start := params.Start
	if start.IsZero() {
		start = end.Add(-time.Hour)
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	q := url.Values{}
	q.Set("query", cfg.Query)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("start", strconv.FormatInt(start.UnixNano(), 10))
	q.Set("end", strconv.FormatInt(end.UnixNano(), 10))
	q.Set("direction", "forward")

	client := httpclient.New(baseURL, cfg.APIKey)
	var resp queryResponse
	if err := client.GetJSON(ctx, "/loki/api/v1/query_range", q, &resp); err != nil {
		return nil, fmt.Errorf("loki source: %w", err)
	}
	if resp.Status != "success" {
		return nil, fmt.Errorf("loki source: query status %q", resp.Status)
	}

	var results []model.RawLine
	for _, st := range resp.Data.Result {
		for _, entry := range st.Values {
			nanos, err := strconv.ParseInt(entry[0], 10, 64)
			if err != nil {
				continue
			}
			results = append(results, model.RawLine{
				Timestamp: time.Unix(0, nanos),
				Source:    "loki",
				Text:      entry[1],
			})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Timestamp.Before(results[j].Timestamp)
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
