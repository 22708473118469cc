package frame

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRenderParseRoundTrip(t *testing.T) {
	screen := &Screen{
		Title: "Members only",
		Text:  "Pick a contract",
		Image: "setup.png",
		Intents: []Intent{
			Button("prev", "contract-base-0"),
			Button("confirm", "confirm-base-0xabc"),
			TxButton("buy", "https://bot.example/api/tx-purchase/base/0xabc/1"),
			Link("docs", "https://unlock-protocol.com"),
		},
	}

	html, err := Render(screen, RenderOptions{
		PostURL:      "https://bot.example/api/setup/base-builders",
		ImageBaseURL: "https://assets.example",
	})
	require.NoError(t, err)
	assert.Contains(t, string(html), `content="vNext"`)

	parsed, err := Parse(bytes.NewReader(html))
	require.NoError(t, err)
	assert.Equal(t, "Members only", parsed.Title)
	assert.Equal(t, "Pick a contract", parsed.Text)
	assert.Equal(t, "https://assets.example/setup.png", parsed.Image)
	require.Len(t, parsed.Intents, 4)
	assert.Equal(t, []string{"contract-base-0", "confirm-base-0xabc"}, parsed.Values())
	assert.Equal(t, ActionTx, parsed.Intents[2].Action)
	assert.Equal(t, "https://bot.example/api/tx-purchase/base/0xabc/1", parsed.Intents[2].Target)
	assert.Equal(t, ActionLink, parsed.Intents[3].Action)
}

func TestRenderTxButtonPostsCallback(t *testing.T) {
	screen := &Screen{Title: "t", Intents: []Intent{TxButton("approve", "https://x/api/tx-approve/base/0x1/5")}}
	html, err := Render(screen, RenderOptions{PostURL: "https://x/api/purchase/c"})
	require.NoError(t, err)
	assert.Contains(t, string(html), `fc:frame:button:1:post_url" content="https://x/api/purchase/c?v=_t"`)
}

func TestRenderTooManyIntents(t *testing.T) {
	screen := &Screen{Title: "t"}
	for i := 0; i < MaxIntents+1; i++ {
		screen.Intents = append(screen.Intents, Button("b", "x"))
	}
	_, err := Render(screen, RenderOptions{})
	assert.Error(t, err)
}

func TestParseRejectsNonFrame(t *testing.T) {
	_, err := Parse(strings.NewReader("<html><head><title>x</title></head></html>"))
	assert.Error(t, err)
}

func TestFetcherRetries(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		html, _ := Render(&Screen{Title: "ok", Intents: []Intent{Button("add", "add")}}, RenderOptions{PostURL: "https://x"})
		w.Write(html)
	}))
	defer srv.Close()

	f := NewFetcher(2*time.Second, 2, zap.NewNop())
	screen, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []string{"add"}, screen.Values())
}
