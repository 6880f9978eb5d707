package catalog

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestLoad_EmbeddedCatalog(t *testing.T) {
	c, err := Load()
	if err != nil {
		t.Fatalf("failed to load embedded catalog: %v", err)
	}

	keys := c.Keys()
	if len(keys) != 23 {
		t.Errorf("expected 23 schemas, got %d: %v", len(keys), keys)
	}
	if keys[0] != CustomKey {
		t.Errorf("expected custom to be declared first, got %s", keys[0])
	}

	custom, ok := c.Get(CustomKey)
	if !ok {
		t.Fatal("custom schema missing")
	}
	if !custom.IsCustom() {
		t.Error("custom schema should report IsCustom")
	}
	var flat []string
	for _, f := range custom.Inputs {
		if f.Group != "" {
			t.Errorf("custom input %s should be flat, got group %s", f.Key, f.Group)
		}
		flat = append(flat, f.Key)
	}
	if strings.Join(flat, ",") != "url,params,body,headers" {
		t.Errorf("unexpected custom inputs order: %v", flat)
	}
}

func TestLoad_GroupedInputsKeepOrder(t *testing.T) {
	c := MustLoad()
	twilio, ok := c.Get("twilio_send_sms")
	if !ok {
		t.Fatal("twilio schema missing")
	}
	if twilio.ContentType != ContentTypeForm {
		t.Errorf("expected form content type, got %q", twilio.ContentType)
	}
	if twilio.BasicAuth == nil || twilio.BasicAuth.Username != "AccountSid" || twilio.BasicAuth.Password != "AuthToken" {
		t.Errorf("unexpected basic auth spec: %+v", twilio.BasicAuth)
	}

	body := twilio.Group(GroupBody)
	var keys []string
	for _, f := range body {
		keys = append(keys, f.Key)
	}
	if strings.Join(keys, ",") != "To,From,Body" {
		t.Errorf("expected body fields To,From,Body, got %v", keys)
	}
	if len(twilio.Group(GroupAuth)) != 1 {
		t.Errorf("expected one auth field, got %d", len(twilio.Group(GroupAuth)))
	}
}

func TestLoad_OutputPaths(t *testing.T) {
	c := MustLoad()
	openai, _ := c.Get("openai_chat")
	found := false
	for _, o := range openai.Outputs {
		if o.Key == "message_text" {
			found = true
			if o.Spec.Path != "output.0.content.0.text" {
				t.Errorf("unexpected message_text path %q", o.Spec.Path)
			}
		}
	}
	if !found {
		t.Error("openai_chat should declare message_text")
	}

	gemini, _ := c.Get("google_gemini")
	for _, o := range gemini.Outputs {
		if o.Key == "response" && o.Spec.Path != WholeDocument {
			t.Errorf("full-response output should use %q, got %q", WholeDocument, o.Spec.Path)
		}
	}
}

func TestResolve_UnknownKeyFallsBackToCustom(t *testing.T) {
	c := MustLoad()
	s, found := c.Resolve("does_not_exist")
	if found {
		t.Error("expected fallback flag for unknown key")
	}
	if s == nil || s.Key != CustomKey {
		t.Fatalf("expected custom schema, got %+v", s)
	}

	s, found = c.Resolve("cat_fact")
	if !found || s.Key != "cat_fact" {
		t.Errorf("expected cat_fact, got %v (found=%v)", s.Key, found)
	}
}

func TestExtract(t *testing.T) {
	data := map[string]any{
		"output": []any{
			map[string]any{"content": []any{map[string]any{"text": "hi"}}},
		},
		"count": float64(3),
	}

	tests := []struct {
		path string
		want any
	}{
		{"output.0.content.0.text", "hi"},
		{"count", float64(3)},
		{"output.1.content", nil},
		{"output.x", nil},
		{"missing.deep.path", nil},
		{"count.value", nil},
	}
	for _, tt := range tests {
		if got := Extract(data, tt.path); got != tt.want {
			t.Errorf("Extract(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}

	if got := Extract(data, WholeDocument); got == nil {
		t.Error("whole-document path should return the input")
	}
	list := []any{map[string]any{"generated_text": "abc"}}
	if got := Extract(list, "0.generated_text"); got != "abc" {
		t.Errorf("expected abc from top-level list, got %v", got)
	}
}

func TestBuildURL(t *testing.T) {
	got, err := BuildURL("https://api.airtable.com/v0/{base_id}/{table_name}", map[string]any{
		"base_id":    "app123",
		"table_name": "My Table",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "https://api.airtable.com/v0/app123/My%20Table" {
		t.Errorf("unexpected url %s", got)
	}

	got, err = BuildURL("https://hooks.slack.com/services/{webhook_path}", map[string]any{"webhook_path": "T1/B2/XYZ"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "https://hooks.slack.com/services/T1/B2/XYZ" {
		t.Errorf("slashes inside a path value should survive, got %s", got)
	}

	got, err = BuildURL("{webhook_url}", map[string]any{"webhook_url": "https://discord.com/api/webhooks/1/a"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "https://discord.com/api/webhooks/1/a" {
		t.Errorf("url values should be inserted verbatim, got %s", got)
	}

	_, err = BuildURL("https://api.example.com/{id}/{other}", map[string]any{"id": "1"})
	if !errors.Is(err, ErrMissingPathParam) {
		t.Fatalf("expected ErrMissingPathParam, got %v", err)
	}
	if !strings.Contains(err.Error(), "other") {
		t.Errorf("error should name the missing key: %v", err)
	}

	_, err = BuildURL("https://api.example.com/{id}", map[string]any{"id": ""})
	if !errors.Is(err, ErrMissingPathParam) {
		t.Errorf("empty value should count as missing, got %v", err)
	}
}

func TestPlaceholders(t *testing.T) {
	keys := Placeholders("https://x/{a}/{b}/{a}")
	if strings.Join(keys, ",") != "a,b" {
		t.Errorf("expected a,b got %v", keys)
	}
}

func TestAddQuery(t *testing.T) {
	got, err := AddQuery("https://api.agify.io?x=1", map[string]any{"name": "michael", "n": float64(2), "skip": nil})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "https://api.agify.io?n=2&name=michael&x=1" {
		t.Errorf("unexpected url %s", got)
	}
}

func TestEncodeBody(t *testing.T) {
	r, ct, err := EncodeBody(ContentTypeForm, map[string]any{"To": "+1", "Body": "hi there"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ct != ContentTypeForm {
		t.Errorf("expected form content type, got %s", ct)
	}
	data, _ := io.ReadAll(r)
	if string(data) != "Body=hi+there&To=%2B1" {
		t.Errorf("unexpected form body %s", data)
	}

	r, ct, err = EncodeBody("", map[string]any{"a": float64(1)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ct != ContentTypeJSON {
		t.Errorf("expected json content type, got %s", ct)
	}
	data, _ = io.ReadAll(r)
	if string(data) != `{"a":1}` {
		t.Errorf("unexpected json body %s", data)
	}

	r, _, err = EncodeBody("", nil)
	if err != nil || r != nil {
		t.Errorf("empty body should produce no reader, got %v %v", r, err)
	}
}

func TestDecodeResponse(t *testing.T) {
	data, ok := DecodeResponse([]byte(`{"fact":"cats"}`))
	if !ok {
		t.Error("expected JSON body to parse")
	}
	if m, _ := data.(map[string]any); m["fact"] != "cats" {
		t.Errorf("unexpected decode result %v", data)
	}

	data, ok = DecodeResponse([]byte("<html>nope</html>"))
	if ok {
		t.Error("expected non-JSON body to be flagged")
	}
	if m, _ := data.(map[string]any); m["raw"] != "<html>nope</html>" {
		t.Errorf("expected raw wrapper, got %v", data)
	}
}

func TestParseRateLimit(t *testing.T) {
	tests := []struct {
		in        string
		wantLimit rate.Limit
		wantBurst int
	}{
		{"5/sec", 5, 5},
		{"1/sec", 1, 1},
		{"60/min", 1, 5},
		{"450/15min", rate.Limit(450.0 / (15 * 60)), 5},
		{"100/hour", rate.Limit(100.0 / 3600), 5},
	}
	for _, tt := range tests {
		limit, burst, err := ParseRateLimit(tt.in)
		if err != nil {
			t.Errorf("ParseRateLimit(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if limit != tt.wantLimit || burst != tt.wantBurst {
			t.Errorf("ParseRateLimit(%q) = %v/%d, want %v/%d", tt.in, limit, burst, tt.wantLimit, tt.wantBurst)
		}
	}

	for _, bad := range []string{"", "abc", "10/fortnight", "0/sec", "x/min"} {
		if _, _, err := ParseRateLimit(bad); err == nil {
			t.Errorf("ParseRateLimit(%q) expected error", bad)
		}
	}
}

func TestRateLimits_Wait(t *testing.T) {
	c := MustLoad()
	limits := c.RateLimits()

	if _, ok := limits.Limiter("cat_fact"); !ok {
		t.Fatal("expected a limiter for cat_fact")
	}
	if _, ok := limits.Limiter(CustomKey); ok {
		t.Error("custom declares no rate limit")
	}

	// slack_webhook allows 1/sec with burst 1: the second call must wait
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := limits.Wait(ctx, "slack_webhook"); err != nil {
		t.Fatalf("first call should pass immediately: %v", err)
	}
	if err := limits.Wait(ctx, "slack_webhook"); err == nil {
		t.Error("second call should not be admitted within 50ms")
	}

	limits.SetEnabled(false)
	if err := limits.Wait(ctx, "slack_webhook"); err != nil {
		t.Errorf("disabled limits should never wait: %v", err)
	}
}

func TestRateLimits_ConfigureDropsRemovedSchemas(t *testing.T) {
	limits := NewRateLimits()
	limits.Configure([]*Schema{
		{Key: "a", RateLimit: "5/sec"},
		{Key: "b", RateLimit: "10/minute"},
	})
	if _, ok := limits.Limiter("b"); !ok {
		t.Fatal("expected a limiter for b")
	}

	limits.Configure([]*Schema{{Key: "a", RateLimit: "5/sec"}})
	if _, ok := limits.Limiter("a"); !ok {
		t.Error("a should keep its limiter")
	}
	if _, ok := limits.Limiter("b"); ok {
		t.Error("b left the catalog but kept its limiter")
	}

	limits.Configure([]*Schema{{Key: "a", RateLimit: "not a limit"}})
	if _, ok := limits.Limiter("a"); ok {
		t.Error("an invalid declaration should drop the limiter")
	}
}

const overrideYAML = `
schemas:
  cat_fact:
    name: Cat Fact v2
    url: https://catfact.ninja/fact
    method: GET
    inputs: {}
    outputs:
      fact:
        type: string
  echo:
    name: Echo
    url: https://postman-echo.com/get
    method: GET
    inputs:
      params:
        message:
          type: string
          default: hi
    outputs:
      args:
        type: json
`

func TestLoadFile_MergesOverride(t *testing.T) {
	c := MustLoad()
	path := filepath.Join(t.TempDir(), "schemas.yaml")
	if err := os.WriteFile(path, []byte(overrideYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := c.LoadFile(path); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	cat, _ := c.Get("cat_fact")
	if cat.Name != "Cat Fact v2" {
		t.Errorf("expected overridden name, got %s", cat.Name)
	}
	if _, ok := c.Get("echo"); !ok {
		t.Error("expected new schema echo")
	}
	if _, ok := c.Get("agify"); !ok {
		t.Error("schemas absent from the override should be kept")
	}
	keys := c.Keys()
	if keys[len(keys)-1] != "echo" {
		t.Errorf("new schemas should be appended, got last key %s", keys[len(keys)-1])
	}
}

func TestParse_RequiresCustom(t *testing.T) {
	if _, err := Parse([]byte(overrideYAML)); err == nil {
		t.Error("expected error for catalog without custom schema")
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	c := MustLoad()
	path := filepath.Join(t.TempDir(), "schemas.yaml")
	if err := os.WriteFile(path, []byte(overrideYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	reloaded := make(chan error, 4)
	w, err := Watch(c, path, func(err error) { reloaded <- err })
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer w.Close()

	updated := strings.Replace(overrideYAML, "Cat Fact v2", "Cat Fact v3", 1)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-reloaded:
		if err != nil {
			t.Fatalf("reload failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	cat, _ := c.Get("cat_fact")
	if cat.Name != "Cat Fact v3" {
		t.Errorf("expected reloaded name, got %s", cat.Name)
	}
}
