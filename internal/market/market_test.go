package market

import (
	"archive/tar"
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"

	"github.com/watzon/gearbox/internal/config"
)

func generateLicenseKey(t *testing.T) (ed25519.PrivateKey, string) {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	der, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)

	pemKey := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	return priv, string(pemKey)
}

func signLicense(t *testing.T, priv ed25519.PrivateKey, subject string, expiresAt time.Time) string {
	t.Helper()

	claims := LicenseClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Tier: "pro",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(priv)
	require.NoError(t, err)
	return token
}

// buildArchive produces a zstd tar containing the given files and its
// blake2b checksum.
func buildArchive(t *testing.T, files map[string]string) ([]byte, string) {
	t.Helper()

	var tarBuf bytes.Buffer
	tw := tar.NewWriter(&tarBuf)
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Typeflag: tar.TypeReg,
			Mode:     0o644,
			Size:     int64(len(content)),
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())

	var out bytes.Buffer
	zw, err := zstd.NewWriter(&out)
	require.NoError(t, err)
	_, err = zw.Write(tarBuf.Bytes())
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	sum := blake2b.Sum256(out.Bytes())
	return out.Bytes(), hex.EncodeToString(sum[:])
}

func setupClient(t *testing.T, listings []Listing, archives map[string][]byte, licenseKey string) *Client {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/extensions", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(listings)
	})
	mux.HandleFunc("/archives/", func(w http.ResponseWriter, r *http.Request) {
		id := filepath.Base(r.URL.Path)
		data, ok := archives[id]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	// Point download URLs at the test server.
	for i := range listings {
		if listings[i].DownloadURL != "" {
			listings[i].DownloadURL = server.URL + listings[i].DownloadURL
		}
	}

	client, err := NewClient(&config.MarketConfig{
		BaseURL:    server.URL,
		LicenseKey: licenseKey,
		InstallDir: t.TempDir(),
		Timeout:    5 * time.Second,
	})
	require.NoError(t, err)
	return client
}

func TestClient_ListingsSanitized(t *testing.T) {
	client := setupClient(t, []Listing{{
		ID:          "greeter",
		Name:        "Greeter",
		Description: `<p>Hello</p><script>alert("pwn")</script>`,
	}}, nil, "")

	listings, err := client.Listings(context.Background())
	require.NoError(t, err)
	require.Len(t, listings, 1)

	assert.Contains(t, listings[0].Description, "<p>Hello</p>")
	assert.NotContains(t, listings[0].Description, "script")
}

func TestClient_ListingNotFound(t *testing.T) {
	client := setupClient(t, nil, nil, "")

	_, err := client.Listing(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrListingNotFound)
}

func TestClient_Install(t *testing.T) {
	archive, checksum := buildArchive(t, map[string]string{
		"manifest.yaml": "name: greeter\n",
		"lib/hooks.js":  "export default {}\n",
	})

	client := setupClient(t, []Listing{{
		ID:          "greeter",
		Version:     "1.0",
		DownloadURL: "/archives/greeter",
		Checksum:    checksum,
	}}, map[string][]byte{"greeter": archive}, "")

	listing, err := client.Listing(context.Background(), "greeter")
	require.NoError(t, err)

	dest, err := client.Install(context.Background(), listing, "")
	require.NoError(t, err)

	manifest, err := os.ReadFile(filepath.Join(dest, "manifest.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "name: greeter\n", string(manifest))
	assert.FileExists(t, filepath.Join(dest, "lib", "hooks.js"))
}

func TestClient_InstallChecksumMismatch(t *testing.T) {
	archive, _ := buildArchive(t, map[string]string{"manifest.yaml": "name: greeter\n"})

	client := setupClient(t, []Listing{{
		ID:          "greeter",
		DownloadURL: "/archives/greeter",
		Checksum:    "deadbeef",
	}}, map[string][]byte{"greeter": archive}, "")

	listing, err := client.Listing(context.Background(), "greeter")
	require.NoError(t, err)

	_, err = client.Install(context.Background(), listing, "")
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestClient_InstallRejectsTraversal(t *testing.T) {
	archive, checksum := buildArchive(t, map[string]string{
		"../../escape.txt": "nope",
	})

	client := setupClient(t, []Listing{{
		ID:          "evil",
		DownloadURL: "/archives/evil",
		Checksum:    checksum,
	}}, map[string][]byte{"evil": archive}, "")

	listing, err := client.Listing(context.Background(), "evil")
	require.NoError(t, err)

	_, err = client.Install(context.Background(), listing, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes install dir")
}

func TestClient_InstallLicensed(t *testing.T) {
	priv, pemKey := generateLicenseKey(t)
	archive, checksum := buildArchive(t, map[string]string{"manifest.yaml": "name: pro\n"})

	client := setupClient(t, []Listing{{
		ID:              "pro-tools",
		DownloadURL:     "/archives/pro-tools",
		Checksum:        checksum,
		RequiresLicense: true,
	}}, map[string][]byte{"pro-tools": archive}, pemKey)

	listing, err := client.Listing(context.Background(), "pro-tools")
	require.NoError(t, err)

	// Valid license for this extension.
	token := signLicense(t, priv, "pro-tools", time.Now().Add(time.Hour))
	_, err = client.Install(context.Background(), listing, token)
	require.NoError(t, err)

	// License scoped to a different extension.
	wrong := signLicense(t, priv, "other-ext", time.Now().Add(time.Hour))
	_, err = client.Install(context.Background(), listing, wrong)
	assert.ErrorIs(t, err, ErrLicenseScope)

	// Expired license.
	expired := signLicense(t, priv, "pro-tools", time.Now().Add(-time.Hour))
	_, err = client.Install(context.Background(), listing, expired)
	assert.ErrorIs(t, err, ErrExpiredLicense)

	// Garbage token.
	_, err = client.Install(context.Background(), listing, "not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidLicense)
}

func TestLicenseVerifier_RejectsWrongKey(t *testing.T) {
	_, pemKey := generateLicenseKey(t)
	otherPriv, _ := generateLicenseKey(t)

	verifier, err := NewLicenseVerifier(pemKey)
	require.NoError(t, err)

	token := signLicense(t, otherPriv, "pro-tools", time.Now().Add(time.Hour))
	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidLicense)
}

func TestNewLicenseVerifier_BadPEM(t *testing.T) {
	_, err := NewLicenseVerifier("not pem at all")
	assert.Error(t, err)
}
