package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestJWTRoundTrip(t *testing.T) {
	token, err := GenerateJWT("secret", 3621, "admin", time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := ParseJWT("secret", token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.FID != 3621 {
		t.Errorf("expected fid 3621, got %d", claims.FID)
	}
	if claims.Role != "admin" {
		t.Errorf("expected role admin, got %s", claims.Role)
	}
	if claims.ID == "" {
		t.Error("expected a token id")
	}
}

func TestJWTWrongSecret(t *testing.T) {
	token, err := GenerateJWT("secret", 1, "admin", time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := ParseJWT("other", token); err == nil {
		t.Fatal("expected error for wrong secret")
	}
}

func TestJWTExpired(t *testing.T) {
	token, err := GenerateJWT("secret", 1, "admin", time.Nanosecond)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	time.Sleep(1100 * time.Millisecond)
	if _, err := ParseJWT("secret", token); err == nil {
		t.Fatal("expected error for expired token")
	}
}

func TestVerifyWebhookSignature(t *testing.T) {
	body := []byte(`{"type":"cast.created","data":{"hash":"0xabc"}}`)
	sig := SignWebhookBody("whsec", body)

	tests := []struct {
		name    string
		body    []byte
		sig     string
		wantErr error
	}{
		{name: "valid", body: body, sig: sig},
		{name: "valid uppercase", body: body, sig: strings.ToUpper(sig)},
		{name: "missing", body: body, sig: "", wantErr: ErrMissingSignature},
		{name: "not hex", body: body, sig: "zz", wantErr: ErrInvalidSignature},
		{name: "tampered body", body: []byte(`{"type":"cast.created"}`), sig: sig, wantErr: ErrInvalidSignature},
		{name: "other secret", body: body, sig: SignWebhookBody("nope", body), wantErr: ErrInvalidSignature},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyWebhookSignature("whsec", tt.body, tt.sig)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}
