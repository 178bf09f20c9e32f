//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func TestRateLimitHeadersPresent(t *testing.T) {
	resp := doGet(t, "/api/orders/1")
	defer resp.Body.Close()

	for _, h := range []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"} {
		if resp.Header.Get(h) == "" {
			t.Errorf("missing header %s", h)
		}
	}
}

func TestMissingIdentityHeaderIs400(t *testing.T) {
	resp := doPostAs(t, "/api/orders", "", placeOrderRequest{RestaurantID: 1})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	body := decodeJSON[errorResponse](t, resp)
	if body.Error == "" {
		t.Error("expected error message")
	}
}

func TestMalformedBodyIs400(t *testing.T) {
	resp := doPostAs(t, "/api/orders", "7", map[string]any{"restaurantId": "not-a-number"})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}
