// Package frame describes Frame screens and converts them to and from the
// fc:frame meta-tag markup clients render.
package frame

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"net/url"
)

// MaxIntents is the number of buttons a Frame can carry.
const MaxIntents = 4

// ValueParam is the query parameter carrying a post button's value back to the server.
const ValueParam = "v"

type ActionType string

const (
	ActionPost ActionType = "post"
	ActionLink ActionType = "link"
	ActionTx   ActionType = "tx"
)

// Intent is one button on a screen. Post intents carry the next button value;
// link and tx intents carry an absolute Target.
type Intent struct {
	Label  string     `json:"label"`
	Action ActionType `json:"action"`
	Value  string     `json:"value,omitempty"`
	Target string     `json:"target,omitempty"`
}

func Button(label, value string) Intent {
	return Intent{Label: label, Action: ActionPost, Value: value}
}

func Link(label, target string) Intent {
	return Intent{Label: label, Action: ActionLink, Target: target}
}

func TxButton(label, target string) Intent {
	return Intent{Label: label, Action: ActionTx, Target: target}
}

// Screen is a rendered wizard step.
type Screen struct {
	Title   string   `json:"title"`
	Text    string   `json:"text"`
	Image   string   `json:"image,omitempty"`
	Intents []Intent `json:"intents"`
}

// Values returns the post button values in order, skipping link and tx intents.
func (s *Screen) Values() []string {
	var out []string
	for _, in := range s.Intents {
		if in.Action == ActionPost {
			out = append(out, in.Value)
		}
	}
	return out
}

// Find returns the first intent with the given label.
func (s *Screen) Find(label string) (Intent, bool) {
	for _, in := range s.Intents {
		if in.Label == label {
			return in, true
		}
	}
	return Intent{}, false
}

// Transaction is the body a Frame tx button target responds with.
type Transaction struct {
	ChainID string            `json:"chainId"`
	Method  string            `json:"method"`
	Params  TransactionParams `json:"params"`
}

type TransactionParams struct {
	ABI   json.RawMessage `json:"abi"`
	To    string          `json:"to"`
	Data  string          `json:"data"`
	Value string          `json:"value,omitempty"`
}

// RenderOptions carry the request-dependent URLs of a screen.
type RenderOptions struct {
	// PostURL is where post buttons send the click, without query string.
	PostURL string
	// ImageBaseURL is prefixed to relative image references.
	ImageBaseURL string
}

type metaTag struct {
	Property string
	Content  string
}

var pageTmpl = template.Must(template.New("frame").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
{{range .Tags}}<meta property="{{.Property}}" content="{{.Content}}">
{{end}}</head>
<body><h1>{{.Title}}</h1><p>{{.Text}}</p></body>
</html>
`))

// Render writes the screen as an HTML document carrying vNext Frame meta tags.
func Render(s *Screen, opts RenderOptions) ([]byte, error) {
	if len(s.Intents) > MaxIntents {
		return nil, fmt.Errorf("screen %q has %d intents, max %d", s.Title, len(s.Intents), MaxIntents)
	}

	image := s.Image
	if image != "" && opts.ImageBaseURL != "" {
		if u, err := url.Parse(image); err == nil && !u.IsAbs() {
			image = opts.ImageBaseURL + "/" + image
		}
	}

	tags := []metaTag{
		{"fc:frame", "vNext"},
		{"og:title", s.Title},
		{"fc:frame:image", image},
		{"og:image", image},
		{"fc:frame:post_url", opts.PostURL},
	}
	for i, in := range s.Intents {
		n := i + 1
		tags = append(tags, metaTag{fmt.Sprintf("fc:frame:button:%d", n), in.Label})
		tags = append(tags, metaTag{fmt.Sprintf("fc:frame:button:%d:action", n), string(in.Action)})
		switch in.Action {
		case ActionPost:
			tags = append(tags, metaTag{fmt.Sprintf("fc:frame:button:%d:target", n), withValue(opts.PostURL, in.Value)})
		case ActionTx:
			tags = append(tags, metaTag{fmt.Sprintf("fc:frame:button:%d:target", n), in.Target})
			tags = append(tags, metaTag{fmt.Sprintf("fc:frame:button:%d:post_url", n), withValue(opts.PostURL, TxCallbackValue)})
		default:
			tags = append(tags, metaTag{fmt.Sprintf("fc:frame:button:%d:target", n), in.Target})
		}
	}

	var buf bytes.Buffer
	err := pageTmpl.Execute(&buf, struct {
		Title string
		Text  string
		Tags  []metaTag
	}{s.Title, s.Text, tags})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// TxCallbackValue is the button value clients post after a transaction was sent.
const TxCallbackValue = "_t"

func withValue(postURL, value string) string {
	if value == "" {
		return postURL
	}
	return postURL + "?" + ValueParam + "=" + url.QueryEscape(value)
}
