package gateway

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/civic-desk/issue-sync/internal/config"
)

func TestS3SignerPresignsComplaintImage(t *testing.T) {
	t.Parallel()

	signer, err := NewS3Signer(config.MediaConfig{
		Endpoint:      "localhost:9000",
		Region:        "ap-south-1",
		Bucket:        "complaints-media",
		AccessKey:     "test-access",
		SecretKey:     "test-secret",
		ExpirySeconds: 3600,
	})
	if err != nil {
		t.Fatalf("NewS3Signer: %v", err)
	}

	raw, err := signer.SignedImageURL(context.Background(), "u1", "c9")
	if err != nil {
		t.Fatalf("SignedImageURL: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if !strings.HasSuffix(u.Path, "/complaints/u1/c9/image.jpg") {
		t.Fatalf("unexpected object path %s", u.Path)
	}
	if u.Query().Get("X-Amz-Expires") != "3600" {
		t.Fatalf("unexpected expiry %q", u.Query().Get("X-Amz-Expires"))
	}

	empty, err := signer.SignedImageURL(context.Background(), "", "c9")
	if err != nil || empty != "" {
		t.Fatalf("expected no url without user id, got %q err=%v", empty, err)
	}
}

func TestS3SignerRequiresRegion(t *testing.T) {
	t.Parallel()

	if _, err := NewS3Signer(config.MediaConfig{Endpoint: "localhost:9000"}); err == nil {
		t.Fatalf("expected error without region")
	}
}
