package imagery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	_ "golang.org/x/image/webp"
	"golang.org/x/net/html"
)

const (
	defaultSearchURL = "https://www.bing.com/images/search"
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/87.0.4280.88 Safari/537.36"

	maxPageBytes  = 8 << 20
	maxImageBytes = 25 << 20
)

// Searcher locates candidate images for a slide query. It never fails: an
// exhausted search yields no candidates.
type Searcher interface {
	Search(ctx context.Context, slideTitle, query string) []Candidate
}

// SearchOptions configures a BingSearcher.
type SearchOptions struct {
	BaseURL   string
	UserAgent string
	// Count is the number of image URLs collected from the result page.
	Count int
	// Timeout bounds each request, the search and every download separately.
	Timeout time.Duration
	Retry   RetryPolicy
	Client  *http.Client
	Logger  *slog.Logger
}

// BingSearcher scrapes the Bing image results page and downloads the
// referenced images.
type BingSearcher struct {
	baseURL   string
	userAgent string
	count     int
	timeout   time.Duration
	retry     RetryPolicy
	client    *http.Client
	logger    *slog.Logger
}

func NewBingSearcher(opts SearchOptions) *BingSearcher {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultSearchURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Count <= 0 {
		opts.Count = 3
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Second
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = DefaultRetryPolicy(3)
	}
	if opts.Client == nil {
		opts.Client = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &BingSearcher{
		baseURL:   opts.BaseURL,
		userAgent: opts.UserAgent,
		count:     opts.Count,
		timeout:   opts.Timeout,
		retry:     opts.Retry,
		client:    opts.Client,
		logger:    opts.Logger,
	}
}

// Search returns the downloadable candidates for query, largest resolution first.
func (b *BingSearcher) Search(ctx context.Context, slideTitle, query string) []Candidate {
	log := b.logger.With("slide", slideTitle, "query", query)
	log.Info("searching images", "want", b.count)

	searchURL := b.baseURL + "?q=" + url.QueryEscape(query)
	page, err := withRetry(ctx, b.retry, func(ctx context.Context) ([]byte, error) {
		return b.fetch(ctx, searchURL, maxPageBytes)
	}, func(attempt int, err error) {
		log.Warn("image search attempt failed", "attempt", attempt, "max", b.retry.MaxAttempts, "error", err)
	})
	if err != nil {
		log.Error("image search failed", "error", err)
		return nil
	}

	links := ParseImageURLs(bytes.NewReader(page), b.count)
	candidates := make([]Candidate, 0, len(links))
	for _, link := range links {
		c, err := withRetry(ctx, b.retry, func(ctx context.Context) (Candidate, error) {
			return b.download(ctx, slideTitle, query, link)
		}, func(attempt int, err error) {
			log.Warn("image download attempt failed", "url", link, "attempt", attempt, "error", err)
		})
		if err != nil {
			log.Error("skipping image", "url", link, "error", err)
			continue
		}
		log.Debug("image downloaded", "url", link, "width", c.Width, "height", c.Height)
		candidates = append(candidates, c)
	}

	SortByResolution(candidates)
	log.Info("image search finished", "found", len(links), "downloaded", len(candidates))
	return candidates
}

func (b *BingSearcher) fetch(ctx context.Context, target string, limit int64) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", b.userAgent)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return data, nil
}

func (b *BingSearcher) download(ctx context.Context, slideTitle, query, link string) (Candidate, error) {
	data, err := b.fetch(ctx, link, maxImageBytes)
	if err != nil {
		return Candidate{}, err
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Candidate{}, fmt.Errorf("decode image: %w", err)
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 {
		return Candidate{}, fmt.Errorf("image has no pixels (%dx%d)", w, h)
	}
	return Candidate{
		SlideTitle: slideTitle,
		Query:      query,
		URL:        link,
		Width:      w,
		Height:     h,
		Resolution: w * h,
		Format:     format,
		Image:      img,
	}, nil
}

// SortByResolution orders candidates by resolution, largest first, keeping
// the original order between equal resolutions.
func SortByResolution(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Resolution > candidates[j].Resolution
	})
}

// resultMeta is the JSON carried in the "m" attribute of a result anchor.
type resultMeta struct {
	MediaURL string `json:"murl"`
}

// ParseImageURLs extracts up to limit direct image URLs from a Bing results
// page. Anchors whose metadata is not valid JSON or does not hold an absolute
// http(s) URL are skipped.
func ParseImageURLs(r io.Reader, limit int) []string {
	doc, err := html.Parse(r)
	if err != nil || limit <= 0 {
		return nil
	}

	var links []string
	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "a" && hasClass(n, "iusc") {
			if link, ok := mediaURL(n); ok {
				links = append(links, link)
				if len(links) >= limit {
					return false
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if !walk(c) {
				return false
			}
		}
		return true
	}
	walk(doc)
	return links
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key == "class" {
			for _, c := range strings.Fields(a.Val) {
				if c == class {
					return true
				}
			}
		}
	}
	return false
}

func mediaURL(n *html.Node) (string, bool) {
	for _, a := range n.Attr {
		if a.Key != "m" {
			continue
		}
		var meta resultMeta
		if err := json.Unmarshal([]byte(a.Val), &meta); err != nil {
			return "", false
		}
		u, err := url.Parse(meta.MediaURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return "", false
		}
		return meta.MediaURL, true
	}
	return "", false
}
