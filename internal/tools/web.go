package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
	"github.com/tidwall/gjson"
	"github.com/tmc/langchaingo/tools/duckduckgo"
)

const (
	DefaultWebTimeout = 30 * time.Second
	DefaultMaxBody    = 5 * 1024 * 1024
	DefaultUserAgent  = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

	maxPageContent = 50000
	defaultResults = 10
)

// Searcher answers a free-text web query
type Searcher interface {
	Call(ctx context.Context, input string) (string, error)
}

// WebTool performs HTTP requests and extracts data from the responses.
// Requests are never retried; a non-2xx status is a failure that still
// carries the response.
type WebTool struct {
	Client    *http.Client
	UserAgent string
	MaxBody   int64
	Renderer  Renderer
	Searcher  Searcher
}

type response struct {
	url       string
	status    int
	header    http.Header
	body      []byte
	truncated bool
}

func NewWebTool(renderer Renderer) *WebTool {
	return &WebTool{
		Client:    &http.Client{Timeout: DefaultWebTimeout},
		UserAgent: DefaultUserAgent,
		MaxBody:   DefaultMaxBody,
		Renderer:  renderer,
	}
}

// NewSearcher returns a DuckDuckGo backed Searcher
func NewSearcher(maxResults int) (Searcher, error) {
	if maxResults <= 0 {
		maxResults = defaultResults
	}
	ddg, err := duckduckgo.New(maxResults, duckduckgo.DefaultUserAgent)
	if err != nil {
		return nil, err
	}
	return ddg, nil
}

func (w *WebTool) Name() Category {
	return Web
}

func (w *WebTool) Description() string {
	return "Fetch URLs, submit forms, extract data from HTML and JSON, and search the web."
}

func (w *WebTool) Operations() []Operation {
	return []Operation{
		{
			Name:        "fetch_url",
			Description: "Send an HTTP request and return status, headers and body",
			Parameters: []Parameter{
				required("url", TypeString, "Absolute http or https URL"),
				optional("method", TypeString, "HTTP method, GET by default"),
				optional("headers", TypeObject, "Request headers"),
				optional("body", TypeAny, "Request body; objects are sent as JSON"),
				optional("timeout", TypeNumber, "Timeout in seconds"),
			},
			Run: w.fetch,
		},
		{
			Name:        "parse_html",
			Description: "Select elements from HTML with a CSS selector",
			Parameters: []Parameter{
				required("selector", TypeString, "CSS selector"),
				optional("html", TypeString, "HTML to parse"),
				optional("url", TypeString, "Page to fetch when html is not given"),
				optional("attribute", TypeString, "Attribute to extract from each match"),
				optional("limit", TypeNumber, "Maximum number of matches"),
			},
			Run: w.parseHTML,
		},
		{
			Name:        "submit_form",
			Description: "Submit form fields to a URL",
			Parameters: []Parameter{
				required("url", TypeString, "Form action URL"),
				required("fields", TypeObject, "Field names and values"),
				optional("method", TypeString, "POST by default; GET sends fields as a query"),
				optional("encoding", TypeString, "form (default) or json"),
				optional("headers", TypeObject, "Request headers"),
			},
			Run: w.submit,
		},
		{
			Name:        "parse_json",
			Description: "Parse JSON text and optionally extract a value by path",
			Parameters: []Parameter{
				required("json", TypeAny, "JSON text or an already decoded value"),
				optional("path", TypeString, "Path such as items.0.name"),
			},
			Run: w.parseJSON,
		},
		{
			Name:        "get_page_info",
			Description: "Fetch a page and return its title, description, readable text and links",
			Parameters: []Parameter{
				required("url", TypeString, "Page URL"),
				optional("render", TypeBoolean, "Render with a headless browser first"),
				optional("waitSelector", TypeString, "Selector to wait for when rendering"),
			},
			Run: w.pageInfo,
		},
		{
			Name:        "search",
			Description: "Search the web and return a result summary",
			Parameters: []Parameter{
				required("query", TypeString, "Search query"),
			},
			Run: w.search,
		},
	}
}

func (w *WebTool) fetch(ctx context.Context, args Args) (Output, error) {
	target, err := urlArg(args, "url")
	if err != nil {
		return nil, err
	}
	method, err := args.OptString("method", http.MethodGet)
	if err != nil {
		return nil, err
	}
	headers, err := args.StringMap("headers")
	if err != nil {
		return nil, err
	}
	secs, err := args.OptInt("timeout", 0)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if args.Has("body") {
		data, ct := encodeBody(args["body"])
		body = bytes.NewReader(data)
		if _, ok := headers["Content-Type"]; !ok && ct != "" {
			if headers == nil {
				headers = map[string]string{}
			}
			headers["Content-Type"] = ct
		}
	}
	if secs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(secs)*time.Second)
		defer cancel()
	}

	resp, err := w.do(ctx, strings.ToUpper(method), target, body, headers)
	if err != nil {
		return nil, err
	}
	return resp.output(), resp.statusError()
}

func (w *WebTool) submit(ctx context.Context, args Args) (Output, error) {
	target, err := urlArg(args, "url")
	if err != nil {
		return nil, err
	}
	fields, err := args.StringMap("fields")
	if err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, validationError("%w: fields", ErrMissingParameter)
	}
	method, err := args.OptString("method", http.MethodPost)
	if err != nil {
		return nil, err
	}
	encoding, err := args.OptString("encoding", "form")
	if err != nil {
		return nil, err
	}
	headers, err := args.StringMap("headers")
	if err != nil {
		return nil, err
	}
	if headers == nil {
		headers = map[string]string{}
	}

	values := url.Values{}
	for k, v := range fields {
		values.Set(k, v)
	}

	method = strings.ToUpper(method)
	var body io.Reader
	switch {
	case method == http.MethodGet:
		u, _ := url.Parse(target)
		q := u.Query()
		for k, v := range fields {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
		target = u.String()
	case strings.EqualFold(encoding, "json"):
		data, _ := json.Marshal(fields)
		body = bytes.NewReader(data)
		headers["Content-Type"] = "application/json"
	case strings.EqualFold(encoding, "form"):
		body = strings.NewReader(values.Encode())
		headers["Content-Type"] = "application/x-www-form-urlencoded"
	default:
		return nil, validationError(
			"%w: encoding must be form or json", ErrInvalidParameter,
		)
	}

	resp, err := w.do(ctx, method, target, body, headers)
	if err != nil {
		return nil, err
	}
	return resp.output(), resp.statusError()
}

func (w *WebTool) parseHTML(ctx context.Context, args Args) (Output, error) {
	selector, err := args.String("selector")
	if err != nil {
		return nil, err
	}
	attr, err := args.OptString("attribute", "")
	if err != nil {
		return nil, err
	}
	limit, err := args.OptInt("limit", 0)
	if err != nil {
		return nil, err
	}

	var src string
	switch {
	case args.Has("html"):
		if src, err = args.Text("html"); err != nil {
			return nil, err
		}
	case args.Has("url"):
		target, err := urlArg(args, "url")
		if err != nil {
			return nil, err
		}
		resp, err := w.do(ctx, http.MethodGet, target, nil, nil)
		if err != nil {
			return nil, err
		}
		if err := resp.statusError(); err != nil {
			return resp.output(), err
		}
		src = string(resp.body)
	default:
		return nil, validationError("%w: html or url", ErrMissingParameter)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		return nil, executionError("failed to parse HTML: %w", err)
	}

	var matches []map[string]any
	var selErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				selErr = validationError(
					"%w: selector %q: %v", ErrInvalidParameter, selector, r,
				)
			}
		}()
		doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			m := map[string]any{
				"text": strings.TrimSpace(s.Text()),
				"tag":  goquery.NodeName(s),
			}
			if attr != "" {
				v, ok := s.Attr(attr)
				if !ok {
					return true
				}
				m["value"] = v
			}
			if h, err := goquery.OuterHtml(s); err == nil {
				m["html"] = h
			}
			matches = append(matches, m)
			return limit <= 0 || len(matches) < limit
		})
	}()
	if selErr != nil {
		return nil, selErr
	}
	if matches == nil {
		matches = []map[string]any{}
	}

	return succeed(Output{
		"selector": selector,
		"count":    len(matches),
		"matches":  matches,
	}), nil
}

func (w *WebTool) parseJSON(_ context.Context, args Args) (Output, error) {
	if !args.Has("json") {
		return nil, validationError("%w: json", ErrMissingParameter)
	}
	path, err := args.OptString("path", "")
	if err != nil {
		return nil, err
	}

	var src string
	switch v := args["json"].(type) {
	case string:
		src = v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, validationError("%w: json: %v", ErrInvalidParameter, err)
		}
		src = string(data)
	}
	if !gjson.Valid(src) {
		return nil, validationError("%w: json is not valid JSON", ErrInvalidParameter)
	}

	if path == "" {
		return succeed(Output{"data": gjson.Parse(src).Value()}), nil
	}
	res := gjson.Get(src, path)
	return succeed(Output{
		"path":  path,
		"found": res.Exists(),
		"data":  res.Value(),
	}), nil
}

func (w *WebTool) pageInfo(ctx context.Context, args Args) (Output, error) {
	target, err := urlArg(args, "url")
	if err != nil {
		return nil, err
	}
	render, err := args.OptBool("render", false)
	if err != nil {
		return nil, err
	}
	wait, err := args.OptString("waitSelector", "")
	if err != nil {
		return nil, err
	}

	var html string
	status := http.StatusOK
	if render {
		if w.Renderer == nil {
			return nil, executionError("page rendering is not available")
		}
		if html, err = w.Renderer.Render(ctx, target, wait); err != nil {
			return nil, err
		}
	} else {
		resp, err := w.do(ctx, http.MethodGet, target, nil, nil)
		if err != nil {
			return nil, err
		}
		if err := resp.statusError(); err != nil {
			return resp.output(), err
		}
		html = string(resp.body)
		status = resp.status
	}

	out := Output{"url": target, "status": status, "rendered": render}
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(html)); err == nil {
		out["title"] = strings.TrimSpace(doc.Find("title").First().Text())
		desc, _ := doc.Find(`meta[name="description"]`).Attr("content")
		out["description"] = desc
		base, _ := url.Parse(target)
		var links []string
		doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
			href, _ := s.Attr("href")
			if u, err := base.Parse(href); err == nil {
				links = append(links, u.String())
			}
		})
		if links == nil {
			links = []string{}
		}
		out["links"] = links
	}

	parsed, _ := url.Parse(target)
	article, err := readability.FromReader(strings.NewReader(html), parsed)
	if err == nil {
		if article.Title != "" {
			out["title"] = article.Title
		}
		if article.Excerpt != "" {
			out["excerpt"] = article.Excerpt
		}
		content := bluemonday.StrictPolicy().Sanitize(article.TextContent)
		if len(content) > maxPageContent {
			content = content[:maxPageContent]
			out["contentTruncated"] = true
		}
		out["content"] = strings.TrimSpace(content)
	}
	return succeed(out), nil
}

func (w *WebTool) search(ctx context.Context, args Args) (Output, error) {
	query, err := args.String("query")
	if err != nil {
		return nil, err
	}
	if w.Searcher == nil {
		return nil, executionError("web search is not available")
	}
	res, err := w.Searcher.Call(ctx, query)
	if err != nil {
		return nil, executionError("search failed: %w", err)
	}
	return succeed(Output{"query": query, "results": res}), nil
}

func (w *WebTool) do(
	ctx context.Context, method, target string, body io.Reader,
	headers map[string]string,
) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, validationError("%w: %v", ErrInvalidParameter, err)
	}
	req.Header.Set("User-Agent", w.UserAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, executionError("request to %s failed: %w", target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	limit := w.MaxBody
	if limit <= 0 {
		limit = DefaultMaxBody
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, executionError("failed to read response: %w", err)
	}
	res := &response{
		url:    resp.Request.URL.String(),
		status: resp.StatusCode,
		header: resp.Header,
		body:   data,
	}
	if int64(len(data)) > limit {
		res.body = data[:limit]
		res.truncated = true
	}
	return res, nil
}

func (r *response) output() Output {
	headers := make(map[string]string, len(r.header))
	for k := range r.header {
		headers[k] = r.header.Get(k)
	}
	out := Output{
		"success":     r.ok(),
		"url":         r.url,
		"status":      r.status,
		"statusText":  http.StatusText(r.status),
		"contentType": r.header.Get("Content-Type"),
		"headers":     headers,
		"body":        string(r.body),
		"truncated":   r.truncated,
	}
	if strings.Contains(r.header.Get("Content-Type"), "json") &&
		gjson.ValidBytes(r.body) {
		out["json"] = gjson.ParseBytes(r.body).Value()
	}
	if !r.ok() {
		out["error"] = r.statusError().Error()
	}
	return out
}

func (r *response) ok() bool {
	return r.status >= 200 && r.status < 300
}

func (r *response) statusError() error {
	if r.ok() {
		return nil
	}
	return executionError("HTTP %d %s", r.status, http.StatusText(r.status))
}

func urlArg(args Args, key string) (string, error) {
	raw, err := args.String(key)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", validationError(
			"%w: %s must be an absolute http(s) URL", ErrInvalidParameter, key,
		)
	}
	return u.String(), nil
}

func encodeBody(v any) ([]byte, string) {
	switch b := v.(type) {
	case string:
		return []byte(b), ""
	case []byte:
		return b, ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return []byte(fmt.Sprint(v)), ""
	}
	return data, "application/json"
}
