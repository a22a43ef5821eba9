// Package btn searches BroadcasTheNet through its JSON-RPC API and resolves
// result series names through the name cache.
package btn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/sceneward/sceneward/internal/library/tv"
	"github.com/sceneward/sceneward/internal/sceneexceptions"
)

const (
	resultsPerPage = 300
	rssMaxAge      = "<=10800" // seconds, three hours
)

// Library resolves the show and episode being searched for.
type Library interface {
	FindShow(ctx context.Context, id int64) (*tv.Show, error)
	GetEpisode(ctx context.Context, showID int64, season, episode int) (*tv.Episode, error)
}

// Exceptions lists alternate names for a show.
type Exceptions interface {
	All(ctx context.Context, showID int64) ([]sceneexceptions.Exception, error)
}

// NameResolver maps release series names to show identifiers.
type NameResolver interface {
	Get(name string) (int64, bool)
	Put(ctx context.Context, name string, showID int64)
	Closest(name string) (string, int64, bool)
}

// Config holds the client settings.
type Config struct {
	APIKey       string
	URL          string
	Timeout      time.Duration
	CallsPerHour int
}

// Client talks to the BTN API.
type Client struct {
	cfg        Config
	http       *http.Client
	library    Library
	exceptions Exceptions
	names      NameResolver
	budget     *callBudget
	logger     zerolog.Logger
}

// New creates a client. clock may be nil.
func New(cfg Config, library Library, exceptions Exceptions, names NameResolver, clock clockwork.Clock, logger zerolog.Logger) *Client {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.CallsPerHour == 0 {
		cfg.CallsPerHour = DefaultCallsPerHour
	}
	return &Client{
		cfg:        cfg,
		http:       &http.Client{Timeout: cfg.Timeout},
		library:    library,
		exceptions: exceptions,
		names:      names,
		budget:     newCallBudget(clock, cfg.CallsPerHour),
		logger:     logger.With().Str("component", "btn").Logger(),
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      string `json:"id"`
}

type rpcResponse struct {
	Result *searchResult `json:"result"`
	Error  *RPCError     `json:"error"`
}

type searchResult struct {
	Results  flexInt    `json:"results"`
	Torrents torrentMap `json:"torrents"`
}

// torrentMap decodes the torrents object, which the API sends as an empty
// array when there are no results.
type torrentMap map[string]Torrent

func (m *torrentMap) UnmarshalJSON(data []byte) error {
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("[")) {
		*m = nil
		return nil
	}
	var raw map[string]Torrent
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = raw
	return nil
}

// Torrent is one entry of a getTorrents result.
type Torrent struct {
	ReleaseName string  `json:"ReleaseName"`
	Series      string  `json:"Series"`
	GroupName   string  `json:"GroupName"`
	Resolution  string  `json:"Resolution"`
	Source      string  `json:"Source"`
	Codec       string  `json:"Codec"`
	DownloadURL string  `json:"DownloadURL"`
	Seeders     flexInt `json:"Seeders"`
	Leechers    flexInt `json:"Leechers"`
	Size        flexInt `json:"Size"`
	Time        flexInt `json:"Time"`
}

// flexInt accepts numbers encoded as JSON numbers or strings. Anything
// unparseable decodes to -1.
type flexInt int64

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = -1
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		*f = -1
		return nil
	}
	*f = flexInt(n)
	return nil
}

// getTorrents performs one JSON-RPC call.
func (c *Client) getTorrents(ctx context.Context, params map[string]any, offset int) (*searchResult, error) {
	if !c.budget.take() {
		return nil, ErrCallBudget
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  "getTorrents",
		Params:  []any{c.cfg.APIKey, params, resultsPerPage, offset},
		ID:      strings.ReplaceAll(uuid.NewString(), "-", ""),
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json-rpc")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("invalid response (status %d): %w", resp.StatusCode, err)
	}
	if decoded.Error != nil {
		return nil, decoded.Error
	}
	if decoded.Result == nil {
		return &searchResult{}, nil
	}
	return decoded.Result, nil
}
