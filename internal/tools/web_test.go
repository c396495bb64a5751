package tools_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnan1985/You-Only-Do-Once/internal/tools"
)

const page = `<html><head><title>Shop</title>
<meta name="description" content="A small shop"></head>
<body><article><h1>Products</h1>
<p>We sell many fine things that are worth reading about at length.</p>
<ul><li class="item"><a href="/a">Apple</a></li>
<li class="item"><a href="/b">Banana</a></li>
<li class="item"><a href="https://other.example/c">Cherry</a></li></ul>
</article></body></html>`

type stubSearcher struct {
	query string
	err   error
}

func (s *stubSearcher) Call(_ context.Context, q string) (string, error) {
	s.query = q
	return "1. result for " + q, s.err
}

type stubRenderer struct{ html string }

func (s stubRenderer) Render(context.Context, string, string) (string, error) {
	return s.html, nil
}

func webServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, page)
	})
	mux.HandleFunc("/api", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"items":[{"name":"x","n":1},{"name":"y","n":2}]}`)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})
	mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Method", r.Method)
		_, _ = fmt.Fprintf(w, "%s|%s|%s|%s",
			r.Method, r.Header.Get("Content-Type"), r.URL.RawQuery, body,
		)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func webRegistry(t *testing.T, web *tools.WebTool) *tools.Registry {
	t.Helper()
	reg, err := tools.NewRegistry(web)
	require.NoError(t, err)
	return reg
}

func TestFetchURL(t *testing.T) {
	srv := webServer(t)
	reg := webRegistry(t, tools.NewWebTool(nil))

	out := call(t, reg, "web", "fetch_url", map[string]any{"url": srv.URL + "/api"})
	assert.Equal(t, 200, out["status"])
	assert.Contains(t, out["body"], `"items"`)
	data := out["json"].(map[string]any)
	assert.Len(t, data["items"], 2)

	out = call(t, reg, "web", "fetch_url", map[string]any{
		"url":     srv.URL + "/echo",
		"method":  "put",
		"body":    map[string]any{"k": "v"},
		"headers": map[string]any{"X-Test": "1"},
	})
	assert.Equal(t, `PUT|application/json||{"k":"v"}`, out["body"])
	assert.Equal(t, "PUT", out["headers"].(map[string]string)["X-Method"])
}

func TestFetchURLNon2xx(t *testing.T) {
	srv := webServer(t)
	reg := webRegistry(t, tools.NewWebTool(nil))

	res := reg.Call(context.Background(), "web", "fetch_url",
		map[string]any{"url": srv.URL + "/missing"},
	)
	require.Error(t, res.Err)
	assert.Equal(t, tools.KindExecution, tools.KindOf(res.Err))
	assert.Contains(t, res.Err.Error(), "404")
	assert.Equal(t, 404, res.Output["status"])
	assert.Equal(t, false, res.Output["success"])
}

func TestFetchURLValidation(t *testing.T) {
	reg := webRegistry(t, tools.NewWebTool(nil))

	for _, u := range []string{"", "ftp://x", "not a url", "/relative"} {
		res := reg.Call(context.Background(), "web", "fetch_url",
			map[string]any{"url": u},
		)
		assert.Equal(t, tools.KindValidation, tools.KindOf(res.Err), u)
	}
}

func TestFetchURLBodyCap(t *testing.T) {
	srv := webServer(t)
	web := tools.NewWebTool(nil)
	web.MaxBody = 10
	reg := webRegistry(t, web)

	out := call(t, reg, "web", "fetch_url", map[string]any{"url": srv.URL + "/page"})
	assert.Equal(t, true, out["truncated"])
	assert.Len(t, out["body"], 10)
}

func TestSubmitForm(t *testing.T) {
	srv := webServer(t)
	reg := webRegistry(t, tools.NewWebTool(nil))

	out := call(t, reg, "web", "submit_form", map[string]any{
		"url":    srv.URL + "/echo",
		"fields": map[string]any{"q": "go lang", "n": 2},
	})
	assert.Equal(t,
		"POST|application/x-www-form-urlencoded||n=2&q=go+lang", out["body"],
	)

	out = call(t, reg, "web", "submit_form", map[string]any{
		"url":      srv.URL + "/echo",
		"fields":   map[string]any{"q": "x"},
		"encoding": "json",
	})
	assert.Equal(t, `POST|application/json||{"q":"x"}`, out["body"])

	out = call(t, reg, "web", "submit_form", map[string]any{
		"url":    srv.URL + "/echo",
		"fields": map[string]any{"q": "x"},
		"method": "GET",
	})
	assert.Equal(t, "GET||q=x|", out["body"])
}

func TestParseHTML(t *testing.T) {
	srv := webServer(t)
	reg := webRegistry(t, tools.NewWebTool(nil))

	out := call(t, reg, "web", "parse_html", map[string]any{
		"html":     page,
		"selector": "li.item a",
		"limit":    2,
	})
	assert.Equal(t, 2, out["count"])
	matches := out["matches"].([]map[string]any)
	assert.Equal(t, "Apple", matches[0]["text"])
	assert.Equal(t, "a", matches[0]["tag"])

	out = call(t, reg, "web", "parse_html", map[string]any{
		"url":       srv.URL + "/page",
		"selector":  "a",
		"attribute": "href",
	})
	matches = out["matches"].([]map[string]any)
	require.Len(t, matches, 3)
	assert.Equal(t, "/b", matches[1]["value"])

	out = call(t, reg, "web", "parse_html", map[string]any{
		"html": page, "selector": "table",
	})
	assert.Equal(t, 0, out["count"])

	res := reg.Call(context.Background(), "web", "parse_html",
		map[string]any{"selector": "a"},
	)
	assert.Equal(t, tools.KindValidation, tools.KindOf(res.Err))
}

func TestParseJSON(t *testing.T) {
	reg := webRegistry(t, tools.NewWebTool(nil))

	out := call(t, reg, "web", "parse_json", map[string]any{
		"json": `{"items":[{"name":"x"},{"name":"y"}]}`,
		"path": "items.1.name",
	})
	assert.Equal(t, true, out["found"])
	assert.Equal(t, "y", out["data"])

	out = call(t, reg, "web", "parse_json", map[string]any{
		"json": map[string]any{"a": []any{1.0, 2.0}},
		"path": "a.#",
	})
	assert.Equal(t, 2.0, out["data"])

	out = call(t, reg, "web", "parse_json", map[string]any{
		"json": `{"a":1}`, "path": "b",
	})
	assert.Equal(t, false, out["found"])

	out = call(t, reg, "web", "parse_json", map[string]any{"json": `[1,2]`})
	assert.Equal(t, []any{1.0, 2.0}, out["data"])

	res := reg.Call(context.Background(), "web", "parse_json",
		map[string]any{"json": `{broken`},
	)
	assert.Equal(t, tools.KindValidation, tools.KindOf(res.Err))
}

func TestGetPageInfo(t *testing.T) {
	srv := webServer(t)
	reg := webRegistry(t, tools.NewWebTool(nil))

	out := call(t, reg, "web", "get_page_info", map[string]any{
		"url": srv.URL + "/page",
	})
	assert.Equal(t, "A small shop", out["description"])
	assert.NotEmpty(t, out["title"])
	links := out["links"].([]string)
	require.Len(t, links, 3)
	assert.Equal(t, srv.URL+"/a", links[0])
	assert.Equal(t, "https://other.example/c", links[2])
	assert.Equal(t, false, out["rendered"])
}

func TestGetPageInfoRendered(t *testing.T) {
	web := tools.NewWebTool(stubRenderer{html: page})
	reg := webRegistry(t, web)

	out := call(t, reg, "web", "get_page_info", map[string]any{
		"url": "https://shop.example/", "render": true,
	})
	assert.Equal(t, true, out["rendered"])
	assert.Equal(t, "A small shop", out["description"])

	reg = webRegistry(t, tools.NewWebTool(nil))
	res := reg.Call(context.Background(), "web", "get_page_info",
		map[string]any{"url": "https://shop.example/", "render": true},
	)
	assert.Equal(t, tools.KindExecution, tools.KindOf(res.Err))
}

func TestSearch(t *testing.T) {
	s := &stubSearcher{}
	web := tools.NewWebTool(nil)
	web.Searcher = s
	reg := webRegistry(t, web)

	out := call(t, reg, "web", "search", map[string]any{"query": "golang"})
	assert.Equal(t, "golang", s.query)
	assert.Equal(t, "1. result for golang", out["results"])

	s.err = errors.New("rate limited")
	res := reg.Call(context.Background(), "web", "search",
		map[string]any{"query": "golang"},
	)
	assert.Contains(t, res.Err.Error(), "rate limited")

	reg = webRegistry(t, tools.NewWebTool(nil))
	res = reg.Call(context.Background(), "web", "search",
		map[string]any{"query": "golang"},
	)
	assert.Equal(t, tools.KindExecution, tools.KindOf(res.Err))
}

func TestNewSearcher(t *testing.T) {
	s, err := tools.NewSearcher(0)
	require.NoError(t, err)
	assert.NotNil(t, s)
}
