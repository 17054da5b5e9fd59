package services

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

const defaultShareBase = "https://app.decleanup.net"

// ShareService renders QR codes for profile and referral share links. Only
// links under the configured base are encoded, so the endpoint cannot be
// used to mint QR codes for arbitrary URLs.
type ShareService struct {
	base string
}

// NewShareService builds a service rooted at base; empty selects the
// default. SHARE_BASE_URL overrides in deployment.
func NewShareService(base string) *ShareService {
	if base == "" {
		base = strings.TrimSpace(os.Getenv("SHARE_BASE_URL"))
	}
	if base == "" {
		base = defaultShareBase
	}
	return &ShareService{base: strings.TrimRight(base, "/")}
}

// ProfileLink returns the share URL for an owner's impact profile.
func (s *ShareService) ProfileLink(owner string) string {
	return s.base + "/profile/" + url.PathEscape(strings.ToLower(owner))
}

// ReferralLink returns the share URL carrying the owner's referral code.
func (s *ShareService) ReferralLink(owner string) string {
	return s.base + "/?ref=" + url.QueryEscape(strings.ToLower(owner))
}

// QRCodePNG encodes a share link as a PNG. size is the image edge in pixels;
// out-of-range values snap to 256.
func (s *ShareService) QRCodePNG(link string, size int) ([]byte, error) {
	if !strings.HasPrefix(link, s.base+"/") {
		return nil, fmt.Errorf("link %q outside share base %q", link, s.base)
	}
	if size < 64 || size > 1024 {
		size = 256
	}
	png, err := qrcode.Encode(link, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}
