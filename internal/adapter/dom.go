package adapter

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	log "github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"
	"resty.dev/v3"

	"discounthub/harvester/internal/config"
	"discounthub/harvester/internal/domain"
)

// DOMAdapter harvests a rendered listing through incremental reveal. Each
// collection step fetches the next slice of the current listing URL and
// parses the product cards with the configured selectors. When a listing
// stops revealing new items (reported back through PageState.NewlySeen) or
// serves an empty slice, the adapter moves on to the next listing URL; the
// source is exhausted when the last listing is.
type DOMAdapter struct {
	cfg       config.SourceConfig
	timeout   time.Duration
	rl        ratelimit.Limiter
	patience  int
	debugDir  string
	transport http.RoundTripper // test seam, nil in production
}

// NewDOMAdapter builds a DOM adapter from a source config of kind "dom".
// stability is the extractor's quiet-step threshold; the adapter gives up on
// a stalled listing one step earlier so multi-listing sources advance before
// the whole collection loop is declared stable.
func NewDOMAdapter(cfg config.SourceConfig, timeout time.Duration, stability int, debugDir string) *DOMAdapter {
	patience := stability - 1
	if patience < 1 {
		patience = 1
	}
	return &DOMAdapter{
		cfg:      cfg,
		timeout:  timeout,
		rl:       newLimiter(cfg.MaxRequestsPerSecond),
		patience: patience,
		debugDir: debugDir,
	}
}

func (a *DOMAdapter) Name() string       { return a.cfg.Name }
func (a *DOMAdapter) BaseURL() string    { return a.cfg.BaseURL }
func (a *DOMAdapter) RevealDriven() bool { return true }

type domSession struct {
	client *resty.Client
	urlIdx int
	page   int // 1-based slice of the current listing
	stale  int // consecutive reveal steps without growth on this listing
	urls   []string
	dumped bool
}

func (s *domSession) Close() error {
	return s.client.Close()
}

// advance moves to the next listing URL, resetting the reveal position.
func (s *domSession) advance() {
	s.urlIdx++
	s.page = 1
	s.stale = 0
}

func (s *domSession) exhausted() bool {
	return s.urlIdx >= len(s.urls)
}

// Open starts a fresh automation session for one harvest.
func (a *DOMAdapter) Open(ctx context.Context) (Session, error) {
	client := newHTTPClient(a.timeout, a.cfg.Headers)
	if a.transport != nil {
		client.SetTransport(a.transport)
	}
	return &domSession{
		client: client,
		page:   1,
		urls:   a.cfg.URLs,
	}, nil
}

// CollectPage performs one reveal step and returns the item set it rendered.
func (a *DOMAdapter) CollectPage(ctx context.Context, sess Session, state PageState) ([]domain.RawItem, bool, error) {
	s, ok := sess.(*domSession)
	if !ok {
		return nil, false, fmt.Errorf("session does not belong to %s", a.cfg.Name)
	}

	// Rendering may stall briefly before loading more content; tolerate a
	// bounded number of stale reveals before giving up on this listing.
	if state.Page > 1 {
		if state.NewlySeen == 0 {
			s.stale++
		} else {
			s.stale = 0
		}
		if s.stale >= a.patience {
			s.advance()
		}
	}

	for {
		if s.exhausted() {
			return nil, false, nil
		}

		pageURL := a.listingURL(s.urls[s.urlIdx], s.page)
		body, err := fetch(ctx, s.client, a.rl, pageURL)
		if err != nil {
			// Site-level failure: capture what we have and abort this source.
			dumpDiagnostics(a.debugDir, slugSource(a.cfg.Name), "fetch-failure", body)
			return nil, false, fmt.Errorf("listing %s: %w", pageURL, err)
		}

		items, err := a.parseListing(body)
		if err != nil {
			dumpDiagnostics(a.debugDir, slugSource(a.cfg.Name), "parse-failure", body)
			return nil, false, fmt.Errorf("listing %s: %w", pageURL, err)
		}
		if len(items) == 0 {
			// No cards rendered: this listing is done (or empty). Keep one
			// payload around for inspection, then try the next listing.
			if !s.dumped {
				dumpDiagnostics(a.debugDir, slugSource(a.cfg.Name), "empty-listing", body)
				s.dumped = true
			}
			s.advance()
			continue
		}

		s.page++
		log.Debugf("%s: revealed %d cards from %s", a.cfg.Name, len(items), pageURL)
		return items, true, nil
	}
}

// listingURL appends the reveal cursor when the site paginates its rendered
// listing (Migros-style ?sayfa=N). Sites that reveal purely on scroll are
// re-fetched as-is and terminate through the stability heuristic.
func (a *DOMAdapter) listingURL(listing string, page int) string {
	param := a.cfg.PageParam
	if param == "" || page <= 1 {
		return listing
	}
	u, err := url.Parse(listing)
	if err != nil {
		return listing
	}
	q := u.Query()
	q.Set(param, strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}

// parseListing extracts raw items from the rendered HTML. A malformed card
// is skipped; it must not abort the collection loop.
func (a *DOMAdapter) parseListing(body []byte) ([]domain.RawItem, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	sel := a.cfg.Selectors
	items := make([]domain.RawItem, 0)
	doc.Find(sel.Card).Each(func(i int, card *goquery.Selection) {
		title := strings.TrimSpace(card.Find(sel.Title).First().Text())
		if title == "" {
			return
		}

		price := strings.TrimSpace(card.Find(sel.Price).First().Text())
		original := strings.TrimSpace(card.Find(sel.OriginalPrice).First().Text())
		if price == "" || original == "" {
			// Cards without a struck-through price are not discounts.
			return
		}

		linkSel := sel.Link
		if linkSel == "" {
			linkSel = "a"
		}
		href, _ := card.Find(linkSel).First().Attr("href")

		items = append(items, domain.RawItem{
			Title:         title,
			URL:           href,
			ImageURL:      a.cardImage(card, sel.Image),
			OriginalPrice: original,
			Price:         price,
		})
	})

	return items, nil
}

// cardImage prefers data-src over src: lazily loaded listings put a
// data: URI placeholder in src until the card scrolls into view.
func (a *DOMAdapter) cardImage(card *goquery.Selection, imageSel string) string {
	if imageSel == "" {
		imageSel = "img"
	}
	img := card.Find(imageSel).First()
	if src, ok := img.Attr("data-src"); ok && src != "" && !strings.HasPrefix(src, "data:") {
		return src
	}
	src, _ := img.Attr("src")
	if strings.HasPrefix(src, "data:") {
		return ""
	}
	return src
}

func slugSource(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, " ", "-"))
}
