// Package neynar is a minimal client for the Neynar Farcaster API.
package neynar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrNotFound is returned when the API answers 404 for a lookup.
var ErrNotFound = errors.New("neynar: not found")

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *zap.Logger
}

func NewClient(baseURL, apiKey string, log *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		log: log,
	}
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("neynar returned %d: %s", e.Status, e.Body)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("neynar unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Body: string(b)}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type Lead struct {
	FID int64 `json:"fid"`
}

type Channel struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	URL       string `json:"url"`
	ParentURL string `json:"parent_url"`
	Lead      Lead   `json:"lead"`
}

type channelResponse struct {
	Channel Channel `json:"channel"`
}

func (c *Client) lookupChannel(ctx context.Context, id, kind string) (*Channel, error) {
	var resp channelResponse
	q := url.Values{"id": {id}, "type": {kind}}
	if err := c.do(ctx, http.MethodGet, "/v2/farcaster/channel", q, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Channel, nil
}

// GetChannel looks a channel up by its id, e.g. "base-builders".
func (c *Client) GetChannel(ctx context.Context, channelID string) (*Channel, error) {
	return c.lookupChannel(ctx, channelID, "id")
}

// GetChannelByParentURL resolves the channel a cast's root_parent_url points to.
func (c *Client) GetChannelByParentURL(ctx context.Context, parentURL string) (*Channel, error) {
	return c.lookupChannel(ctx, parentURL, "parent_url")
}

type VerifiedAddresses struct {
	EthAddresses []string `json:"eth_addresses"`
}

type User struct {
	FID               int64             `json:"fid"`
	Username          string            `json:"username"`
	CustodyAddress    string            `json:"custody_address"`
	VerifiedAddresses VerifiedAddresses `json:"verified_addresses"`
	Verifications     []string          `json:"verifications"`
}

// EthAddresses returns the user's 0x-prefixed verified addresses, lower-cased and de-duplicated.
func (u User) EthAddresses() []string {
	return CollectAddresses(append(append([]string{}, u.VerifiedAddresses.EthAddresses...), u.Verifications...))
}

// CollectAddresses keeps 0x-prefixed entries, lower-cases them and drops duplicates, preserving order.
func CollectAddresses(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, a := range in {
		a = strings.ToLower(strings.TrimSpace(a))
		if !strings.HasPrefix(a, "0x") || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}

type bulkUsersResponse struct {
	Users []User `json:"users"`
}

func (c *Client) FetchBulkUsers(ctx context.Context, fids ...int64) ([]User, error) {
	ids := make([]string, len(fids))
	for i, f := range fids {
		ids[i] = strconv.FormatInt(f, 10)
	}
	var resp bulkUsersResponse
	q := url.Values{"fids": {strings.Join(ids, ",")}}
	if err := c.do(ctx, http.MethodGet, "/v2/farcaster/user/bulk", q, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// GetVerifiedAddresses returns the verified EVM addresses of fid.
func (c *Client) GetVerifiedAddresses(ctx context.Context, fid int64) ([]string, error) {
	users, err := c.FetchBulkUsers(ctx, fid)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.FID == fid {
			return u.EthAddresses(), nil
		}
	}
	return nil, ErrNotFound
}

type Embed struct {
	URL string `json:"url"`
}

type CastOptions struct {
	ReplyTo  string
	EmbedURL string
}

type publishCastRequest struct {
	SignerUUID string  `json:"signer_uuid"`
	Text       string  `json:"text"`
	Parent     string  `json:"parent,omitempty"`
	Embeds     []Embed `json:"embeds,omitempty"`
}

type PublishedCast struct {
	Hash string `json:"hash"`
}

type publishCastResponse struct {
	Success bool          `json:"success"`
	Cast    PublishedCast `json:"cast"`
}

func (c *Client) PublishCast(ctx context.Context, signerUUID, text string, opts CastOptions) (*PublishedCast, error) {
	req := publishCastRequest{SignerUUID: signerUUID, Text: text, Parent: opts.ReplyTo}
	if opts.EmbedURL != "" {
		req.Embeds = []Embed{{URL: opts.EmbedURL}}
	}
	var resp publishCastResponse
	if err := c.do(ctx, http.MethodPost, "/v2/farcaster/cast", nil, req, &resp); err != nil {
		return nil, fmt.Errorf("publish cast: %w", err)
	}
	return &resp.Cast, nil
}

const ReactionLike = "like"

type reactionRequest struct {
	SignerUUID   string `json:"signer_uuid"`
	ReactionType string `json:"reaction_type"`
	Target       string `json:"target"`
}

type successResponse struct {
	Success bool `json:"success"`
}

func (c *Client) PublishReaction(ctx context.Context, signerUUID, kind, targetHash string) error {
	var resp successResponse
	err := c.do(ctx, http.MethodPost, "/v2/farcaster/reaction", nil,
		reactionRequest{SignerUUID: signerUUID, ReactionType: kind, Target: targetHash}, &resp)
	if err != nil {
		return fmt.Errorf("publish reaction: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("publish reaction: not accepted")
	}
	return nil
}

type Interactor struct {
	FID               int64             `json:"fid"`
	Username          string            `json:"username"`
	CustodyAddress    string            `json:"custody_address"`
	VerifiedAddresses VerifiedAddresses `json:"verified_addresses"`
}

type ActionCast struct {
	Hash          string `json:"hash"`
	RootParentURL string `json:"root_parent_url"`
}

type TappedButton struct {
	Index int `json:"index"`
}

type ActionTransaction struct {
	Hash string `json:"hash"`
}

type FrameAction struct {
	Interactor   Interactor         `json:"interactor"`
	TappedButton TappedButton       `json:"tapped_button"`
	Cast         ActionCast         `json:"cast"`
	URL          string             `json:"url"`
	Address      string             `json:"address"`
	Transaction  *ActionTransaction `json:"transaction,omitempty"`
}

type FrameValidation struct {
	Valid  bool        `json:"valid"`
	Action FrameAction `json:"action"`
}

// InteractorAddresses returns the interactor's verified addresses, normalized.
func (v *FrameValidation) InteractorAddresses() []string {
	if !v.Valid {
		return nil
	}
	return CollectAddresses(v.Action.Interactor.VerifiedAddresses.EthAddresses)
}

type validateFrameRequest struct {
	MessageBytesInHex string `json:"message_bytes_in_hex"`
}

// ValidateFrameAction verifies a signed frame action. Invalid signatures are
// reported through Valid, not as an error.
func (c *Client) ValidateFrameAction(ctx context.Context, messageBytesHex string) (*FrameValidation, error) {
	var resp FrameValidation
	if err := c.do(ctx, http.MethodPost, "/v2/farcaster/frame/validate", nil,
		validateFrameRequest{MessageBytesInHex: messageBytesHex}, &resp); err != nil {
		return nil, fmt.Errorf("validate frame action: %w", err)
	}
	return &resp, nil
}

type CastCreatedFilter struct {
	RootParentURLs []string `json:"root_parent_urls,omitempty"`
	ParentURLs     []string `json:"parent_urls,omitempty"`
}

type WebhookSubscription struct {
	Filters struct {
		CastCreated *CastCreatedFilter `json:"cast.created,omitempty"`
	} `json:"filters"`
}

type Webhook struct {
	WebhookID    string              `json:"webhook_id"`
	Title        string              `json:"title"`
	TargetURL    string              `json:"target_url"`
	Active       bool                `json:"active"`
	Subscription WebhookSubscription `json:"subscription"`
}

// RootParentURLs returns the cast.created root parent filter, if any.
func (w *Webhook) RootParentURLs() []string {
	if w.Subscription.Filters.CastCreated == nil {
		return nil
	}
	return w.Subscription.Filters.CastCreated.RootParentURLs
}

type webhookResponse struct {
	Webhook Webhook `json:"webhook"`
}

func (c *Client) LookupWebhook(ctx context.Context, webhookID string) (*Webhook, error) {
	var resp webhookResponse
	if err := c.do(ctx, http.MethodGet, "/v2/farcaster/webhook", url.Values{"webhook_id": {webhookID}}, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Webhook, nil
}

type updateWebhookRequest struct {
	WebhookID    string              `json:"webhook_id"`
	Name         string              `json:"name"`
	URL          string              `json:"url"`
	Subscription WebhookSubscription `json:"subscription"`
}

// UpdateWebhook replaces the webhook's subscription, keeping its name and target.
func (c *Client) UpdateWebhook(ctx context.Context, hook *Webhook) error {
	req := updateWebhookRequest{
		WebhookID:    hook.WebhookID,
		Name:         hook.Title,
		URL:          hook.TargetURL,
		Subscription: hook.Subscription,
	}
	if err := c.do(ctx, http.MethodPut, "/v2/farcaster/webhook", nil, req, &successResponse{}); err != nil {
		return fmt.Errorf("update webhook %s: %w", hook.WebhookID, err)
	}
	c.log.Info("webhook subscription updated",
		zap.String("webhook_id", hook.WebhookID),
		zap.Int("root_parent_urls", len(hook.RootParentURLs())),
	)
	return nil
}
