package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"discounthub/harvester/internal/config"
)

const listingHTML = `<!doctype html><html><body>
<div class="card">
	<div class="title">Sek Süt 1L</div>
	<a href="/urun/sek-sut-1l"></a>
	<img src="data:image/gif;base64,R0lGOD" data-src="https://cdn.test/sut.jpg"/>
	<div class="price">75,00 TL</div>
	<div class="old">100,00 TL</div>
</div>
<div class="card">
	<div class="title">Çaykur Çay 500g</div>
	<a href="/urun/caykur-cay"></a>
	<img src="https://cdn.test/cay.jpg"/>
	<div class="price">89,90 TL</div>
	<div class="old">120,00 TL</div>
</div>
<div class="card">
	<div class="title">Tam Fiyatlı Ürün</div>
	<a href="/urun/tam-fiyat"></a>
	<div class="price">49,90 TL</div>
</div>
<div class="card">
	<a href="/urun/isimsiz"></a>
	<div class="price">9,90 TL</div>
	<div class="old">19,90 TL</div>
</div>
</body></html>`

const emptyHTML = `<!doctype html><html><body><div class="no-results"></div></body></html>`

func domConfig(urls ...string) config.SourceConfig {
	return config.SourceConfig{
		Name:    "A101",
		Kind:    "dom",
		BaseURL: "http://site.test",
		URLs:    urls,
		Selectors: config.SelectorConfig{
			Card:          ".card",
			Title:         ".title",
			Link:          "a",
			Image:         "img",
			Price:         ".price",
			OriginalPrice: ".old",
		},
	}
}

func openDOM(t *testing.T, a *DOMAdapter) Session {
	t.Helper()
	sess, err := a.Open(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })
	return sess
}

func TestDOMCollectPageParsesCards(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://site.test/aktuel",
		htmlResponder(listingHTML))

	a := NewDOMAdapter(domConfig("http://site.test/aktuel"), 5*time.Second, 5, "")
	a.transport = transport
	sess := openDOM(t, a)

	items, hasMore, err := a.CollectPage(context.Background(), sess, PageState{Page: 1})

	require.NoError(t, err)
	assert.True(t, hasMore)
	// Cards without a title or without a struck-through price are skipped.
	require.Len(t, items, 2)

	assert.Equal(t, "Sek Süt 1L", items[0].Title)
	assert.Equal(t, "/urun/sek-sut-1l", items[0].URL)
	assert.Equal(t, "https://cdn.test/sut.jpg", items[0].ImageURL, "data-src wins over placeholder src")
	assert.Equal(t, "100,00 TL", items[0].OriginalPrice)
	assert.Equal(t, "75,00 TL", items[0].Price)

	assert.Equal(t, "Çaykur Çay 500g", items[1].Title)
	assert.Equal(t, "https://cdn.test/cay.jpg", items[1].ImageURL)
}

func TestDOMCollectPageAppendsPageParam(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://site.test/indirim", htmlResponder(listingHTML))
	transport.RegisterResponder("GET", "http://site.test/indirim?sayfa=2", htmlResponder(listingHTML))

	cfg := domConfig("http://site.test/indirim")
	cfg.PageParam = "sayfa"
	a := NewDOMAdapter(cfg, 5*time.Second, 5, "")
	a.transport = transport
	sess := openDOM(t, a)

	_, _, err := a.CollectPage(context.Background(), sess, PageState{Page: 1})
	require.NoError(t, err)
	_, _, err = a.CollectPage(context.Background(), sess, PageState{Page: 2, NewlySeen: 2})
	require.NoError(t, err)

	info := transport.GetCallCountInfo()
	assert.Equal(t, 1, info["GET http://site.test/indirim"])
	assert.Equal(t, 1, info["GET http://site.test/indirim?sayfa=2"])
}

func TestDOMEmptyListingAdvancesToNext(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://site.test/bos", htmlResponder(emptyHTML))
	transport.RegisterResponder("GET", "http://site.test/dolu", htmlResponder(listingHTML))

	a := NewDOMAdapter(domConfig("http://site.test/bos", "http://site.test/dolu"), 5*time.Second, 5, "")
	a.transport = transport
	sess := openDOM(t, a)

	items, hasMore, err := a.CollectPage(context.Background(), sess, PageState{Page: 1})

	require.NoError(t, err)
	assert.True(t, hasMore)
	assert.Len(t, items, 2)
}

func TestDOMExhaustedListingsEndCollection(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://site.test/bos", htmlResponder(emptyHTML))

	a := NewDOMAdapter(domConfig("http://site.test/bos"), 5*time.Second, 5, "")
	a.transport = transport
	sess := openDOM(t, a)

	items, hasMore, err := a.CollectPage(context.Background(), sess, PageState{Page: 1})

	require.NoError(t, err)
	assert.False(t, hasMore)
	assert.Empty(t, items)
}

func TestDOMStalledListingAdvancesAfterPatience(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://site.test/one", htmlResponder(listingHTML))
	transport.RegisterResponder("GET", "http://site.test/two", htmlResponder(emptyHTML))

	// stability 2 means one stale reveal is enough to move on.
	a := NewDOMAdapter(domConfig("http://site.test/one", "http://site.test/two"), 5*time.Second, 2, "")
	a.transport = transport
	sess := openDOM(t, a)

	_, hasMore, err := a.CollectPage(context.Background(), sess, PageState{Page: 1})
	require.NoError(t, err)
	require.True(t, hasMore)

	// No growth on the reveal step: the adapter gives up on the first
	// listing, finds the second empty, and reports exhaustion.
	items, hasMore, err := a.CollectPage(context.Background(), sess, PageState{Page: 2, NewlySeen: 0})
	require.NoError(t, err)
	assert.False(t, hasMore)
	assert.Empty(t, items)

	info := transport.GetCallCountInfo()
	assert.Equal(t, 1, info["GET http://site.test/one"])
	assert.Equal(t, 1, info["GET http://site.test/two"])
}

func TestDOMFetchFailureIsSourceLevel(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://site.test/aktuel",
		httpmock.NewStringResponder(403, "forbidden"))

	a := NewDOMAdapter(domConfig("http://site.test/aktuel"), 5*time.Second, 5, "")
	a.transport = transport
	sess := openDOM(t, a)

	_, _, err := a.CollectPage(context.Background(), sess, PageState{Page: 1})
	assert.Error(t, err)
}

func htmlResponder(body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(200, body)
	resp.Header.Set("Content-Type", "text/html")
	return httpmock.ResponderFromResponse(resp)
}
