package nutrition

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/router-for-me/mealtracker/internal/config"
)

func TestClientLookup_SumsFoods(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.Header.Get("x-app-id") != "id" || r.Header.Get("x-app-key") != "key" {
			t.Errorf("missing credentials headers")
		}
		if errParse := r.ParseForm(); errParse != nil {
			t.Errorf("parse form: %v", errParse)
		}
		if got := r.PostForm.Get("query"); got != "2 eggs and toast" {
			t.Errorf("expected query form value, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"foods":[{"food_name":"egg","serving_qty":2,"nf_calories":143.2},{"food_name":"toast","serving_qty":1,"nf_calories":74.5}]}`))
	}))
	defer server.Close()

	client := NewClient(config.NutritionixConfig{AppID: "id", AppKey: "key", URL: server.URL, Timeout: time.Second})
	calories, errLookup := client.Calories(context.Background(), "  2 eggs and toast ")
	if errLookup != nil {
		t.Fatalf("lookup: %v", errLookup)
	}
	if calories != 218 {
		t.Fatalf("expected 218 calories, got %d", calories)
	}
}

func TestClientLookup_Failures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.PostFormValue("query") == "nothing" {
			_, _ = w.Write([]byte(`{"foods":[]}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"We couldn't match any of your foods"}`))
	}))
	defer server.Close()

	client := NewClient(config.NutritionixConfig{AppID: "id", AppKey: "key", URL: server.URL})
	if _, errLookup := client.Lookup(context.Background(), "asdf"); errLookup == nil {
		t.Fatalf("expected error for non-2xx status")
	}
	if _, errLookup := client.Lookup(context.Background(), "nothing"); errLookup == nil {
		t.Fatalf("expected error for empty foods")
	}

	unconfigured := NewClient(config.NutritionixConfig{URL: server.URL})
	if unconfigured.Configured() {
		t.Fatalf("expected client without credentials to be unconfigured")
	}
	if _, errLookup := unconfigured.Lookup(context.Background(), "apple"); errLookup == nil {
		t.Fatalf("expected error without credentials")
	}
}

func TestParseNutrientsPayload(t *testing.T) {
	estimate, errParse := ParseNutrientsPayload("q", []byte(`{"foods":[{"food_name":" apple ","nf_calories":94.6},{"food_name":"x","nf_calories":-3}]}`))
	if errParse != nil {
		t.Fatalf("parse: %v", errParse)
	}
	if estimate.Calories != 95 || len(estimate.Foods) != 2 || estimate.Foods[0].Name != "apple" {
		t.Fatalf("unexpected estimate: %+v", estimate)
	}
	if _, errParse = ParseNutrientsPayload("q", nil); errParse == nil {
		t.Fatalf("expected error for empty payload")
	}
	if _, errParse = ParseNutrientsPayload("q", []byte(`{`)); errParse == nil {
		t.Fatalf("expected error for malformed payload")
	}
}
