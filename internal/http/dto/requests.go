package dto

// WebhookCast is a Neynar webhook delivery. Only cast.created is handled.
type WebhookCast struct {
	Type string          `json:"type"`
	Data WebhookCastData `json:"data"`
}

type WebhookCastData struct {
	Hash          string        `json:"hash"`
	Text          string        `json:"text"`
	Author        WebhookAuthor `json:"author"`
	RootParentURL string        `json:"root_parent_url"`
}

type WebhookAuthor struct {
	FID int64 `json:"fid"`
}

// FrameRequest is the body a Frame client POSTs on a button click.
type FrameRequest struct {
	UntrustedData FrameUntrustedData `json:"untrustedData"`
	TrustedData   FrameTrustedData   `json:"trustedData"`
}

type FrameUntrustedData struct {
	FID         int64  `json:"fid"`
	ButtonIndex int    `json:"buttonIndex"`
	Address     string `json:"address,omitempty"`
	CastID      struct {
		FID  int64  `json:"fid"`
		Hash string `json:"hash"`
	} `json:"castId"`
}

type FrameTrustedData struct {
	MessageBytes string `json:"messageBytes"`
}
