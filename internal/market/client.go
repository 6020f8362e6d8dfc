// Package market talks to the remote extension marketplace: listing
// discovery, license verification and archive install. Every failure here
// is an external I/O problem; callers degrade, they never crash.
package market

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/blake2b"

	"github.com/watzon/gearbox/internal/config"
)

var (
	ErrChecksumMismatch = errors.New("archive checksum mismatch")
	ErrListingNotFound  = errors.New("listing not found")
)

// maxArchiveSize bounds how much we will download and unpack.
const maxArchiveSize = 64 << 20

// Listing is one marketplace extension. Description HTML is sanitized
// before it leaves this package.
type Listing struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Version         string `json:"version"`
	Author          string `json:"author"`
	Description     string `json:"description"`
	DownloadURL     string `json:"download_url"`
	Checksum        string `json:"checksum"`
	RequiresLicense bool   `json:"requires_license"`
}

// Client is the marketplace HTTP client.
type Client struct {
	baseURL    string
	installDir string
	http       *http.Client
	policy     *bluemonday.Policy
	verifier   *LicenseVerifier
}

// NewClient builds a client from config. A license verifier is only set up
// when a public key is configured; installing licensed extensions without
// one fails.
func NewClient(cfg *config.MarketConfig) (*Client, error) {
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		installDir: cfg.InstallDir,
		http:       &http.Client{Timeout: cfg.Timeout},
		policy:     bluemonday.UGCPolicy(),
	}

	if cfg.LicenseKey != "" {
		verifier, err := NewLicenseVerifier(cfg.LicenseKey)
		if err != nil {
			return nil, fmt.Errorf("configuring license verifier: %w", err)
		}
		c.verifier = verifier
	}
	return c, nil
}

// Listings fetches the marketplace catalog.
func (c *Client) Listings(ctx context.Context) ([]Listing, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/extensions", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching listings: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching listings: unexpected status %d", resp.StatusCode)
	}

	var listings []Listing
	if err := json.NewDecoder(resp.Body).Decode(&listings); err != nil {
		return nil, fmt.Errorf("decoding listings: %w", err)
	}

	for i := range listings {
		listings[i].Description = c.policy.Sanitize(listings[i].Description)
	}
	return listings, nil
}

// Listing fetches one listing by ID.
func (c *Client) Listing(ctx context.Context, id string) (*Listing, error) {
	listings, err := c.Listings(ctx)
	if err != nil {
		return nil, err
	}
	for i := range listings {
		if listings[i].ID == id {
			return &listings[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrListingNotFound, id)
}

// Install downloads the listing's archive, verifies its checksum and
// unpacks it under the install dir. Licensed extensions need a token whose
// subject matches the listing ID. The install path is returned.
func (c *Client) Install(ctx context.Context, listing *Listing, licenseToken string) (string, error) {
	if listing.RequiresLicense {
		if c.verifier == nil {
			return "", fmt.Errorf("%w: no license key configured", ErrInvalidLicense)
		}
		claims, err := c.verifier.Verify(licenseToken)
		if err != nil {
			return "", err
		}
		if claims.Subject != listing.ID {
			return "", fmt.Errorf("%w: licensed for %q", ErrLicenseScope, claims.Subject)
		}
	}

	archive, err := c.download(ctx, listing.DownloadURL)
	if err != nil {
		return "", err
	}

	sum := blake2b.Sum256(archive)
	if got := hex.EncodeToString(sum[:]); got != listing.Checksum {
		return "", fmt.Errorf("%w: got %s, want %s", ErrChecksumMismatch, got, listing.Checksum)
	}

	dest := filepath.Join(c.installDir, listing.ID)
	if err := c.unpack(archive, dest); err != nil {
		os.RemoveAll(dest)
		return "", err
	}

	log.Info().Str("extension", listing.ID).Str("version", listing.Version).Str("path", dest).Msg("installed extension")
	return dest, nil
}

func (c *Client) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading archive: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading archive: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxArchiveSize+1))
	if err != nil {
		return nil, fmt.Errorf("downloading archive: %w", err)
	}
	if len(data) > maxArchiveSize {
		return nil, errors.New("archive exceeds size limit")
	}
	return data, nil
}

// unpack decompresses a zstd tar archive into dest, rejecting entries that
// would escape it.
func (c *Client) unpack(archive []byte, dest string) error {
	zr, err := zstd.NewReader(bytes.NewReader(archive))
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer zr.Close()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("creating install dir: %w", err)
	}

	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading archive: %w", err)
		}

		target := filepath.Join(dest, filepath.Clean(hdr.Name))
		if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry escapes install dir: %s", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("creating directory: %w", err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("creating directory: %w", err)
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
			if err != nil {
				return fmt.Errorf("creating file: %w", err)
			}
			if _, err := io.Copy(f, io.LimitReader(tr, maxArchiveSize)); err != nil {
				f.Close()
				return fmt.Errorf("extracting file: %w", err)
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("closing file: %w", err)
			}
		default:
			// Symlinks and devices are not allowed in extension archives.
			return fmt.Errorf("unsupported archive entry type for %s", hdr.Name)
		}
	}
}
