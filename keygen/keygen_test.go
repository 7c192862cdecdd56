package keygen

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"quantumharmony.io/vault/keystore"
)

func goodSecretHex() string {
	return hex.EncodeToString(bytes.Repeat([]byte{0xAA}, keystore.SecretKeySize))
}

func jsonHandler(status int, body any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

func newTestClient(endpoints ...string) *Client {
	return New(Config{Endpoints: endpoints, Timeout: 2 * time.Second})
}

func TestGenerate_Success(t *testing.T) {
	var method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		jsonHandler(http.StatusOK, response{Success: true, SecretKeyHex: goodSecretHex()})(w, r)
	}))
	defer srv.Close()

	kp, err := newTestClient(srv.URL).Generate(context.Background(), "")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	defer kp.Zero()

	if method != http.MethodPost {
		t.Fatalf("endpoint called with %s, want POST", method)
	}
	if len(kp.SecretKey) != keystore.SecretKeySize {
		t.Fatalf("secret key is %d bytes", len(kp.SecretKey))
	}
	if !bytes.Equal(kp.PublicKey, kp.SecretKey[64:128]) {
		t.Fatalf("public key is not the trailing half of the secret key")
	}
}

func TestGenerate_ShortHexFallsThrough(t *testing.T) {
	// 255 hex chars: one short of a valid 128-byte key. The client must
	// reject it and fall through to the next candidate.
	bad := httptest.NewServer(jsonHandler(http.StatusOK, response{
		Success:      true,
		SecretKeyHex: goodSecretHex()[:255],
	}))
	defer bad.Close()
	good := httptest.NewServer(jsonHandler(http.StatusOK, response{
		Success:      true,
		SecretKeyHex: goodSecretHex(),
	}))
	defer good.Close()

	kp, err := newTestClient(bad.URL, good.URL).Generate(context.Background(), "")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	kp.Zero()
}

func TestGenerate_RejectionReasonsFallThrough(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"non-2xx", jsonHandler(http.StatusBadGateway, response{Success: true, SecretKeyHex: goodSecretHex()})},
		{"reported failure", jsonHandler(http.StatusOK, response{Success: false})},
		{"wrong content type", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html>generator</html>"))
		}},
		{"not json", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte("not json"))
		}},
		{"non-hex payload", jsonHandler(http.StatusOK, response{
			Success:      true,
			SecretKeyHex: "zz" + goodSecretHex()[2:],
		})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bad := httptest.NewServer(tc.handler)
			defer bad.Close()
			good := httptest.NewServer(jsonHandler(http.StatusOK, response{
				Success:      true,
				SecretKeyHex: goodSecretHex(),
			}))
			defer good.Close()

			kp, err := newTestClient(bad.URL, good.URL).Generate(context.Background(), "")
			if err != nil {
				t.Fatalf("client did not fall through: %v", err)
			}
			kp.Zero()
		})
	}
}

func TestGenerate_ExhaustionReturnsGuidance(t *testing.T) {
	bad := httptest.NewServer(jsonHandler(http.StatusInternalServerError, response{}))
	defer bad.Close()

	_, err := newTestClient(bad.URL, bad.URL).Generate(context.Background(), "")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("exhaustion: got %v, want ErrUnavailable", err)
	}
}

func TestGenerate_PreferredEndpointFirst(t *testing.T) {
	var order []string
	mk := func(name string) *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			order = append(order, name)
			jsonHandler(http.StatusOK, response{Success: true, SecretKeyHex: goodSecretHex()})(w, r)
		}))
	}
	preferred := mk("preferred")
	defer preferred.Close()
	configured := mk("configured")
	defer configured.Close()

	kp, err := newTestClient(configured.URL).Generate(context.Background(), preferred.URL)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	kp.Zero()
	if len(order) != 1 || order[0] != "preferred" {
		t.Fatalf("expected only the preferred endpoint to be hit, got %v", order)
	}
}

func TestGenerate_ContextCancellationStops(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err := newTestClient(srv.URL, srv.URL).Generate(ctx, "")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled generate: got %v, want context.Canceled", err)
	}
}

func TestPing(t *testing.T) {
	healthy := httptest.NewServer(jsonHandler(http.StatusOK, map[string]string{"status": "healthy"}))
	defer healthy.Close()
	if err := newTestClient().Ping(context.Background(), healthy.URL); err != nil {
		t.Fatalf("Ping healthy endpoint: %v", err)
	}

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()
	if err := newTestClient().Ping(context.Background(), down.URL); err == nil {
		t.Fatalf("Ping accepted an unhealthy endpoint")
	}
}
