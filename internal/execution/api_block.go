package execution

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"nodelink/internal/blocks"
	"nodelink/internal/catalog"
	"nodelink/internal/models"
)

// Core API outputs
const (
	OutputResponseJSON = "response_json"
	OutputStatusCode   = "status_code"
	OutputError        = "error"
)

const maxResponseBytes = 10 << 20

// APIBlock calls a third-party HTTP API described by a catalog schema.
// Its dynamic ports are rebuilt whenever the schema changes.
type APIBlock struct {
	deps        Deps
	schemaKey   string
	url         string
	method      string
	contentType string
	schema      *catalog.Schema
}

// NewAPIBlock creates an API block bound to the custom schema
func NewAPIBlock(deps Deps) *APIBlock {
	a := &APIBlock{deps: deps}
	a.useSchema(catalog.CustomKey)
	return a
}

func (a *APIBlock) Type() blocks.Type { return blocks.TypeAPI }

func (a *APIBlock) RegisterPorts(b *blocks.Block) {
	b.RegisterCoreInput(blocks.TriggerKey, nil, blocks.PortMeta{Hidden: true})
	b.RegisterCoreOutput(OutputResponseJSON, blocks.PortMeta{DataType: blocks.DataJSON})
	b.RegisterCoreOutput(OutputStatusCode, blocks.PortMeta{DataType: blocks.DataNumber})
	b.RegisterCoreOutput(OutputError, blocks.PortMeta{DataType: blocks.DataString})
	a.registerSchemaPorts(b)
}

// SchemaKey returns the schema the block is bound to
func (a *APIBlock) SchemaKey() string { return a.schemaKey }

// useSchema resolves key and resets url, method and content type from it.
// It reports false when key was unknown and custom was used instead.
func (a *APIBlock) useSchema(key string) bool {
	schema, ok := a.deps.Catalog.Resolve(key)
	a.schema = schema
	a.schemaKey = schema.Key
	a.url = schema.URL
	a.method = strings.ToUpper(schema.Method)
	if a.method == "" {
		a.method = http.MethodGet
	}
	a.contentType = schema.ContentType
	if a.contentType == "" {
		a.contentType = catalog.ContentTypeJSON
	}
	return ok
}

// ApplySchema rebinds the block to a schema and rebuilds its dynamic ports.
// Connectors on removed ports are detached and returned.
func (a *APIBlock) ApplySchema(b *blocks.Block, key string) []*blocks.Connector {
	if !a.useSchema(key) {
		fallback(a.deps.Recorder, FallbackUnknownSchema, "api block %s: schema %q not found, using %s", b.ID, key, catalog.CustomKey)
	}
	detached := b.ClearDynamicPorts()
	a.registerSchemaPorts(b)
	return detached
}

func (a *APIBlock) registerSchemaPorts(b *blocks.Block) {
	for _, f := range a.schema.Inputs {
		meta := blocks.PortMeta{
			DataType:    dataTypeOf(f.Spec.Type),
			Hidden:      f.Spec.Hidden,
			Required:    f.Spec.Required,
			Placeholder: f.Spec.Placeholder,
			Description: f.Spec.Description,
			Validation:  f.Spec.Validation,
		}
		if !a.schema.IsCustom() {
			meta.Group = f.Group
		}
		b.RegisterInput(f.Key, cloneValue(f.Spec.Default), meta)
	}
	for _, o := range a.schema.Outputs {
		meta := blocks.PortMeta{
			DataType:    dataTypeOf(o.Spec.Type),
			Hidden:      o.Spec.Hidden,
			Description: o.Spec.Description,
			Path:        o.Spec.Path,
			Format:      o.Spec.Format,
		}
		// core outputs keep their slot and only pick up the metadata
		b.RegisterOutput(o.Key, meta)
	}
}

func (a *APIBlock) Configure(b *blocks.Block, cfg models.BlockConfig) error {
	if cfg.SchemaKey != nil && *cfg.SchemaKey != a.schemaKey {
		a.ApplySchema(b, *cfg.SchemaKey)
	}
	if cfg.URL != nil {
		a.url = *cfg.URL
	}
	if cfg.Method != nil {
		method := strings.ToUpper(strings.TrimSpace(*cfg.Method))
		if method == "" {
			return fmt.Errorf("method must not be empty")
		}
		a.method = method
	}
	return nil
}

func (a *APIBlock) Serialize(cfg *models.BlockConfig) {
	cfg.SchemaKey = models.StringPtr(a.schemaKey)
	cfg.URL = models.StringPtr(a.url)
	cfg.Method = models.StringPtr(a.method)
}

// Extras exposes the schema choice to the canvas
func (a *APIBlock) Extras() map[string]any {
	return map[string]any{
		"schema_key":  a.schemaKey,
		"schema_name": a.schema.Name,
		"doc_url":     a.schema.DocURL,
		"url":         a.url,
		"method":      a.method,
		"schema_keys": a.deps.Catalog.Keys(),
	}
}

// apiRequest is the resolved request of one execution
type apiRequest struct {
	method      string
	url         string
	headers     map[string]string
	body        []byte
	contentType string
	username    string
	password    string
	basicAuth   bool
}

func (a *APIBlock) Execute(ctx context.Context, b *blocks.Block) error {
	for _, key := range []string{OutputResponseJSON, OutputStatusCode, OutputError} {
		b.SetOutput(key, nil)
	}

	req, err := a.buildRequest(b)
	if err != nil {
		return err
	}

	scope := scopeFrom(ctx)
	log.Printf("🌐 [API-BLOCK] Block '%s' (%s): %s %s", b.Name, a.schemaKey, req.method, req.url)

	status, body, callErr := a.send(ctx, scope, req)
	if status > 0 {
		data, isJSON := catalog.DecodeResponse(body)
		if !isJSON && len(bytes.TrimSpace(body)) > 0 {
			fallback(a.deps.Recorder, FallbackRawResponse, "api block %s: response is not JSON", b.ID)
		}
		b.SetOutput(OutputStatusCode, status)
		b.SetOutput(OutputResponseJSON, data)
		if callErr == nil {
			a.extractOutputs(b, data, isJSON, body)
		}
	}

	if callErr != nil {
		b.SetOutput(OutputError, UserFriendlyError(callErr))
		log.Printf("❌ [API-BLOCK] Block '%s' failed: %s", b.Name, callErr.Error())
		return &ExternalCallError{ExecutionError: callErr, Method: req.method, URL: req.url}
	}
	b.SetOutput(OutputError, nil)
	log.Printf("✅ [API-BLOCK] Block '%s': status=%d, body_len=%d", b.Name, status, len(body))
	return nil
}

// buildRequest assembles URL, headers and body from the block inputs
func (a *APIBlock) buildRequest(b *blocks.Block) (*apiRequest, error) {
	req := &apiRequest{
		method:      a.method,
		headers:     make(map[string]string),
		contentType: a.contentType,
	}

	var params, body map[string]any
	if a.schema.IsCustom() {
		target := a.url
		if v, _ := b.Input("url"); stringify(v) != "" {
			target = stringify(v)
		}
		if strings.TrimSpace(target) == "" {
			return nil, blockError("url is required")
		}
		req.url = target
		params = a.objectInput(b, "params")
		body = a.objectInput(b, "body")
		for k, v := range a.objectInput(b, "headers") {
			req.headers[k] = stringify(v)
		}
	} else {
		groups := a.groupValues(b)
		built, err := catalog.BuildURL(a.url, groups[catalog.GroupPath])
		if err != nil {
			return nil, blockError("cannot build url: %v", err)
		}
		req.url = built
		params = groups[catalog.GroupParams]
		body = groups[catalog.GroupBody]
		for k, v := range groups[catalog.GroupHeaders] {
			req.headers[k] = stringify(v)
		}
		if ba := a.schema.BasicAuth; ba != nil {
			req.basicAuth = true
			user, _ := b.Input(ba.Username)
			pass, _ := b.Input(ba.Password)
			req.username, req.password = stringify(user), stringify(pass)
		} else {
			for k, v := range groups[catalog.GroupAuth] {
				req.headers[k] = stringify(v)
			}
		}
	}

	withQuery, err := catalog.AddQuery(req.url, params)
	if err != nil {
		return nil, blockError("%v", err)
	}
	req.url = withQuery
	if _, err := url.ParseRequestURI(req.url); err != nil {
		return nil, blockError("invalid url %q: %v", req.url, err)
	}

	if req.method != http.MethodGet && req.method != http.MethodHead {
		reader, contentType, err := catalog.EncodeBody(req.contentType, body)
		if err != nil {
			return nil, blockError("%v", err)
		}
		if reader != nil {
			data, err := io.ReadAll(reader)
			if err != nil {
				return nil, blockError("cannot encode body: %v", err)
			}
			req.body = data
			req.contentType = contentType
		}
	}
	return req, nil
}

// objectInput reads a JSON object input; strings holding JSON are parsed
func (a *APIBlock) objectInput(b *blocks.Block, key string) map[string]any {
	raw, _ := b.Input(key)
	if raw == nil {
		return nil
	}
	if s, ok := raw.(string); ok && strings.TrimSpace(s) == "" {
		return nil
	}
	obj, ok := toObject(raw)
	if !ok {
		fallback(a.deps.Recorder, FallbackInvalidJSON, "api block %s: %s is not a JSON object", b.ID, key)
		return nil
	}
	return obj
}

// groupValues collects non-empty input values by group
func (a *APIBlock) groupValues(b *blocks.Block) map[string]map[string]any {
	groups := make(map[string]map[string]any)
	for _, p := range b.InputPorts() {
		if p.Meta.Group == "" || p.Value == nil {
			continue
		}
		if s, ok := p.Value.(string); ok && s == "" {
			continue
		}
		if groups[p.Meta.Group] == nil {
			groups[p.Meta.Group] = make(map[string]any)
		}
		groups[p.Meta.Group][p.Key] = p.Value
	}
	return groups
}

// send performs the call with rate limiting, timeout and retries.
// It returns the last status and body seen, if any.
func (a *APIBlock) send(ctx context.Context, scope *blockScope, req *apiRequest) (int, []byte, *ExecutionError) {
	opts := a.deps.Options
	backoff := NewBackoffCalculator(opts.RetryBackoff, 10*time.Second, 2.0, 20)
	host := hostOf(req.url)

	var (
		status  int
		body    []byte
		lastErr *ExecutionError
	)
	for attempt := 0; attempt <= opts.APIMaxRetries; attempt++ {
		if attempt > 0 {
			if scope.breaker != nil && scope.breaker.IsTripped(host) {
				log.Printf("⚠️ [API-BLOCK] Circuit open for %s, not retrying", host)
				break
			}
			if scope.onRetry != nil {
				scope.onRetry(models.RetryAttempt{
					Attempt:   attempt,
					Error:     lastErr.Error(),
					ErrorType: errorType(lastErr),
					Timestamp: time.Now(),
				})
			}
			delay := backoff.NextDelay(attempt - 1)
			log.Printf("🔄 [API-BLOCK] Retry %d/%d for %s in %v", attempt, opts.APIMaxRetries, host, delay)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return status, body, ClassifyError(ctx.Err())
			case <-timer.C:
			}
		}

		if err := a.deps.Catalog.RateLimits().Wait(ctx, a.schemaKey); err != nil {
			return status, body, ClassifyError(err)
		}

		var err error
		status, body, err = a.do(ctx, req)
		switch {
		case err != nil:
			lastErr = ClassifyError(err)
		case status >= 400:
			lastErr = ClassifyHTTPError(status, string(body))
		default:
			if scope.breaker != nil {
				scope.breaker.RecordSuccess(host)
			}
			return status, body, nil
		}

		if scope.breaker != nil {
			scope.breaker.RecordFailure(host)
		}
		if ctx.Err() != nil || !ShouldRetry(lastErr) {
			break
		}
	}
	return status, body, lastErr
}

func (a *APIBlock) do(ctx context.Context, req *apiRequest) (int, []byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.deps.Options.APITimeout)
	defer cancel()

	var reader io.Reader
	if req.body != nil {
		reader = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(callCtx, req.method, req.url, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}
	if req.body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	if req.basicAuth {
		httpReq.SetBasicAuth(req.username, req.password)
	}

	resp, err := a.deps.Client.Do(httpReq)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, data, nil
}

// extractOutputs fills the schema outputs from a successful response
func (a *APIBlock) extractOutputs(b *blocks.Block, data any, isJSON bool, raw []byte) {
	for _, p := range b.OutputPorts() {
		if p.Core {
			continue
		}
		if strings.HasPrefix(p.Meta.Format, "base64") && !isJSON {
			b.SetOutput(p.Key, base64.StdEncoding.EncodeToString(raw))
			continue
		}
		path := p.Meta.Path
		if path == "" {
			path = p.Key
		}
		b.SetOutput(p.Key, catalog.Extract(data, path))
	}
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}

func dataTypeOf(t string) blocks.DataType {
	switch strings.ToLower(t) {
	case "string":
		return blocks.DataString
	case "number", "integer", "float":
		return blocks.DataNumber
	case "boolean", "bool":
		return blocks.DataBoolean
	case "json", "object":
		return blocks.DataJSON
	case "list", "array":
		return blocks.DataList
	}
	return blocks.DataAny
}

// cloneValue copies map and list defaults so blocks never share them
func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = cloneValue(item)
		}
		return out
	}
	return v
}
