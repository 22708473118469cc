package neynar

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func newTestServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-key", zap.NewNop())
}

func TestCollectAddresses(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"empty", nil, []string{}},
		{"dedupe case-insensitive", []string{"0xAbC", "0xabc", " 0xABC "}, []string{"0xabc"}},
		{"drops non-evm", []string{"So1anaAddr", "0x1", "bc1qxyz"}, []string{"0x1"}},
		{"preserves order", []string{"0xb", "0xa", "0xb"}, []string{"0xb", "0xa"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CollectAddresses(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("CollectAddresses(%v) = %v, want %v", tt.in, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("CollectAddresses(%v)[%d] = %q, want %q", tt.in, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestGetChannelByParentURL(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		if r.URL.Path != "/v2/farcaster/channel" || r.URL.Query().Get("type") != "parent_url" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		w.Write([]byte(`{"channel":{"id":"base-builders","url":"https://warpcast.com/~/channel/base-builders","lead":{"fid":42}}}`))
	})

	ch, err := c.GetChannelByParentURL(context.Background(), "https://warpcast.com/~/channel/base-builders")
	if err != nil {
		t.Fatalf("GetChannelByParentURL: %v", err)
	}
	if ch.ID != "base-builders" || ch.Lead.FID != 42 {
		t.Errorf("got %+v", ch)
	}
}

func TestGetChannelNotFound(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	_, err := c.GetChannel(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestGetVerifiedAddresses(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("fids"); got != "7" {
			t.Errorf("fids = %q", got)
		}
		w.Write([]byte(`{"users":[{"fid":7,"verified_addresses":{"eth_addresses":["0xAAA","0xbbb"]},"verifications":["0xaaa","solanaaddr"]}]}`))
	})

	addrs, err := c.GetVerifiedAddresses(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetVerifiedAddresses: %v", err)
	}
	if len(addrs) != 2 || addrs[0] != "0xaaa" || addrs[1] != "0xbbb" {
		t.Errorf("addrs = %v", addrs)
	}
}

func TestPublishCast(t *testing.T) {
	var got publishCastRequest
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"success":true,"cast":{"hash":"0xcast"}}`))
	})

	cast, err := c.PublishCast(context.Background(), "signer", "hi", CastOptions{ReplyTo: "0xparent", EmbedURL: "https://bot/api/purchase/x"})
	if err != nil {
		t.Fatalf("PublishCast: %v", err)
	}
	if cast.Hash != "0xcast" {
		t.Errorf("hash = %q", cast.Hash)
	}
	if got.Parent != "0xparent" || len(got.Embeds) != 1 || got.Embeds[0].URL != "https://bot/api/purchase/x" {
		t.Errorf("request = %+v", got)
	}
}

func TestPublishReactionFailure(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"bad signer"}`))
	})
	err := c.PublishReaction(context.Background(), "signer", ReactionLike, "0xcast")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest {
		t.Errorf("err = %v, want APIError 400", err)
	}
}

func TestValidateFrameAction(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"valid":true,"action":{"interactor":{"fid":9,"verified_addresses":{"eth_addresses":["0xAb","0xab"]}},"cast":{"root_parent_url":"chain://x"}}}`))
	})

	v, err := c.ValidateFrameAction(context.Background(), "deadbeef")
	if err != nil {
		t.Fatalf("ValidateFrameAction: %v", err)
	}
	if v.Action.Interactor.FID != 9 {
		t.Errorf("fid = %d", v.Action.Interactor.FID)
	}
	if addrs := v.InteractorAddresses(); len(addrs) != 1 || addrs[0] != "0xab" {
		t.Errorf("addresses = %v", addrs)
	}

	v.Valid = false
	if addrs := v.InteractorAddresses(); len(addrs) != 0 {
		t.Errorf("invalid action should have no addresses, got %v", addrs)
	}
}

func TestUpdateWebhook(t *testing.T) {
	var got updateWebhookRequest
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s", r.Method)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"success":true}`))
	})

	hook := &Webhook{WebhookID: "wh", Title: "gate", TargetURL: "https://bot/api/hook-validate"}
	hook.Subscription.Filters.CastCreated = &CastCreatedFilter{RootParentURLs: []string{"u1"}}
	if err := c.UpdateWebhook(context.Background(), hook); err != nil {
		t.Fatalf("UpdateWebhook: %v", err)
	}
	if got.WebhookID != "wh" || got.Subscription.Filters.CastCreated == nil || got.Subscription.Filters.CastCreated.RootParentURLs[0] != "u1" {
		t.Errorf("request = %+v", got)
	}
}
