package frame

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// Parse reads Frame meta tags back into a Screen. Post intents get their
// value from the button target's query string.
func Parse(r io.Reader) (*Screen, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}

	tags := make(map[string]string)
	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		prop, ok := s.Attr("property")
		if !ok {
			prop, ok = s.Attr("name")
		}
		if !ok {
			return
		}
		content, _ := s.Attr("content")
		tags[prop] = content
	})

	if tags["fc:frame"] == "" {
		return nil, fmt.Errorf("document has no fc:frame tag")
	}

	screen := &Screen{
		Title: tags["og:title"],
		Text:  strings.TrimSpace(doc.Find("body p").First().Text()),
		Image: tags["fc:frame:image"],
	}
	if screen.Title == "" {
		screen.Title = strings.TrimSpace(doc.Find("title").Text())
	}

	for n := 1; n <= MaxIntents; n++ {
		key := "fc:frame:button:" + strconv.Itoa(n)
		label, ok := tags[key]
		if !ok {
			break
		}
		action := ActionType(tags[key+":action"])
		if action == "" {
			action = ActionPost
		}
		in := Intent{Label: label, Action: action}
		target := tags[key+":target"]
		if action == ActionPost {
			if u, err := url.Parse(target); err == nil {
				in.Value = u.Query().Get(ValueParam)
			}
		} else {
			in.Target = target
		}
		screen.Intents = append(screen.Intents, in)
	}
	return screen, nil
}

// Fetcher downloads and parses Frame pages.
type Fetcher struct {
	httpClient *http.Client
	maxRetries int
	log        *zap.Logger
}

func NewFetcher(timeout time.Duration, maxRetries int, log *zap.Logger) *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		log:        log,
	}
}

// Fetch GETs a Frame URL and parses it, retrying transport failures and non-200 responses.
func (f *Fetcher) Fetch(ctx context.Context, frameURL string) (*Screen, error) {
	var lastErr error
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, frameURL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := f.httpClient.Do(req)
		if err != nil {
			lastErr = err
			f.log.Debug("frame fetch failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			lastErr = fmt.Errorf("HTTP %d for %s", resp.StatusCode, frameURL)
			continue
		}

		screen, err := Parse(resp.Body)
		resp.Body.Close()
		return screen, err
	}
	return nil, lastErr
}
