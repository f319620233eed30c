package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"
	"resty.dev/v3"

	"discounthub/harvester/internal/config"
	"discounthub/harvester/internal/domain"
)

// APIAdapter harvests a paginated JSON search endpoint. With priming enabled
// (kind "session") it first visits the storefront to capture the transient
// cookies the API requires, then replays them on every search request.
type APIAdapter struct {
	cfg       config.SourceConfig
	timeout   time.Duration
	rl        ratelimit.Limiter
	prime     bool
	debugDir  string
	transport http.RoundTripper // test seam, nil in production
}

// NewAPIAdapter builds an adapter for a source of kind "api" or "session".
func NewAPIAdapter(cfg config.SourceConfig, timeout time.Duration, debugDir string) *APIAdapter {
	return &APIAdapter{
		cfg:      cfg,
		timeout:  timeout,
		rl:       newLimiter(cfg.MaxRequestsPerSecond),
		prime:    cfg.Kind == "session",
		debugDir: debugDir,
	}
}

func (a *APIAdapter) Name() string       { return a.cfg.Name }
func (a *APIAdapter) BaseURL() string    { return a.cfg.BaseURL }
func (a *APIAdapter) RevealDriven() bool { return false }

type apiSession struct {
	client *resty.Client
}

func (s *apiSession) Close() error {
	return s.client.Close()
}

// Open builds the HTTP session. For session-kind sources it performs the
// cookie bootstrap: one storefront GET, whose cookies are turned into the
// headers the JSON API expects.
func (a *APIAdapter) Open(ctx context.Context) (Session, error) {
	client := newHTTPClient(a.timeout, a.cfg.Headers)
	if a.transport != nil {
		client.SetTransport(a.transport)
	}
	if !a.prime {
		return &apiSession{client: client}, nil
	}

	a.rl.Take()
	resp, err := client.R().
		SetContext(ctx).
		Get(a.cfg.PrimeURL)
	if err != nil {
		return nil, fmt.Errorf("session bootstrap for %s: %w", a.cfg.Name, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("session bootstrap for %s: HTTP %d", a.cfg.Name, resp.StatusCode())
	}

	cookies := resp.Cookies()
	pairs := make([]string, 0, len(cookies))
	byName := make(map[string]string, len(cookies))
	for _, c := range cookies {
		pairs = append(pairs, c.Name+"="+c.Value)
		byName[c.Name] = c.Value
	}
	client.SetHeader("Cookie", strings.Join(pairs, "; "))

	// cookie_headers maps request header names to cookie names, e.g.
	// x-store-id -> X-Store-Id. Missing cookies leave the header unset.
	for header, cookieName := range a.cfg.CookieHeaders {
		if v, ok := byName[cookieName]; ok {
			client.SetHeader(header, v)
		}
	}

	log.Infof("%s: session primed with %d cookies", a.cfg.Name, len(cookies))
	return &apiSession{client: client}, nil
}

// searchResponse is the structured-API raw shape. It never leaks past this
// adapter.
type searchResponse struct {
	Results []struct {
		Product struct {
			Name   string `json:"name"`
			Path   string `json:"path"`
			Images []struct {
				Host string `json:"host"`
				Path string `json:"path"`
			} `json:"images"`
		} `json:"product"`
		Prices struct {
			Discounted struct {
				Value float64 `json:"value"`
			} `json:"discounted"`
			Original struct {
				Value float64 `json:"value"`
			} `json:"original"`
		} `json:"prices"`
	} `json:"results"`
}

// CollectPage requests one page of the search API. The first empty page is
// authoritative: hasMore=false, no look-ahead, no retry.
func (a *APIAdapter) CollectPage(ctx context.Context, sess Session, state PageState) ([]domain.RawItem, bool, error) {
	s, ok := sess.(*apiSession)
	if !ok {
		return nil, false, fmt.Errorf("session does not belong to %s", a.cfg.Name)
	}

	body, err := fetch(ctx, s.client, a.rl, a.pageURL(state.Page))
	if err != nil {
		dumpDiagnostics(a.debugDir, slugSource(a.cfg.Name), "api-failure", body)
		return nil, false, fmt.Errorf("page %d: %w", state.Page, err)
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		dumpDiagnostics(a.debugDir, slugSource(a.cfg.Name), "api-decode-failure", body)
		return nil, false, fmt.Errorf("page %d: decode: %w", state.Page, err)
	}
	if len(parsed.Results) == 0 {
		return nil, false, nil
	}

	items := make([]domain.RawItem, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		name := strings.TrimSpace(r.Product.Name)
		if name == "" {
			continue
		}

		imageURL := ""
		if len(r.Product.Images) > 0 {
			img := r.Product.Images[0]
			if img.Host != "" && img.Path != "" {
				imageURL = strings.TrimRight(img.Host, "/") + "/" + strings.TrimLeft(img.Path, "/")
			}
		}

		items = append(items, domain.RawItem{
			Title:         name,
			URL:           "/urun/" + r.Product.Path,
			ImageURL:      imageURL,
			OriginalPrice: formatAmount(r.Prices.Original.Value),
			Price:         formatAmount(r.Prices.Discounted.Value),
		})
	}

	log.Debugf("%s: page %d returned %d results", a.cfg.Name, state.Page, len(parsed.Results))
	return items, true, nil
}

// pageURL renders the search URL for one page, merging the configured query
// template with the pagination cursor.
func (a *APIAdapter) pageURL(page int) string {
	u, err := url.Parse(a.cfg.APIURL)
	if err != nil {
		return a.cfg.APIURL
	}
	q := u.Query()
	for k, v := range a.cfg.QueryParams {
		q.Set(k, v)
	}
	q.Set("page", strconv.Itoa(page))
	if a.cfg.PageSize > 0 {
		q.Set("size", strconv.Itoa(a.cfg.PageSize))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// formatAmount renders a JSON number the way the raw contract expects:
// adapters emit strings, the normalizer parses them.
func formatAmount(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}
