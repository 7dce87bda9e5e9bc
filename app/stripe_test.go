package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

// stubStripe points a StripeBilling at a local server answering customer reads.
func stubStripe(t *testing.T, status int, body string) *StripeBilling {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v1/customers/cus_7" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	api := &client.API{}
	api.Init("sk_test_stub", &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
	return &StripeBilling{api: api}
}

func TestStripeBillingCustomerEmail(t *testing.T) {
	b := stubStripe(t, http.StatusOK, `{"id":"cus_7","object":"customer","email":"carla@example.com"}`)
	email, err := b.CustomerEmail(context.Background(), "cus_7")
	require.NoError(t, err)
	assert.Equal(t, "carla@example.com", email)
}

func TestStripeBillingDeletedCustomerIsGone(t *testing.T) {
	b := stubStripe(t, http.StatusOK, `{"id":"cus_7","object":"customer","deleted":true}`)
	_, err := b.CustomerEmail(context.Background(), "cus_7")
	assert.ErrorIs(t, err, ErrCustomerGone)
}

func TestStripeBillingMissingCustomerIsGone(t *testing.T) {
	b := stubStripe(t, http.StatusNotFound, `{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such customer: 'cus_7'"}}`)
	_, err := b.CustomerEmail(context.Background(), "cus_7")
	assert.ErrorIs(t, err, ErrCustomerGone)
}

func TestStripeBillingServerErrorIsRetryable(t *testing.T) {
	b := stubStripe(t, http.StatusInternalServerError, `{"error":{"type":"api_error","message":"boom"}}`)
	_, err := b.CustomerEmail(context.Background(), "cus_7")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCustomerGone)
}
