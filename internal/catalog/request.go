package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// Content types understood by the body encoder
const (
	ContentTypeJSON = "application/json"
	ContentTypeForm = "application/x-www-form-urlencoded"
)

// ErrMissingPathParam is returned when a URL placeholder has no value
var ErrMissingPathParam = errors.New("missing path parameter")

var urlPlaceholder = regexp.MustCompile(`\{([^{}]+)\}`)

// Placeholders returns the distinct {key} names of a URL template in order
func Placeholders(template string) []string {
	var keys []string
	seen := make(map[string]bool)
	for _, m := range urlPlaceholder.FindAllStringSubmatch(template, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			keys = append(keys, m[1])
		}
	}
	return keys
}

// BuildURL substitutes {key} placeholders from values.
// A value that is itself a URL is inserted verbatim; anything else is
// path-escaped segment by segment so embedded slashes survive.
func BuildURL(template string, values map[string]any) (string, error) {
	var missing []string
	out := urlPlaceholder.ReplaceAllStringFunc(template, func(match string) string {
		key := match[1 : len(match)-1]
		raw, ok := values[key]
		s := Stringify(raw)
		if !ok || raw == nil || s == "" {
			missing = append(missing, key)
			return match
		}
		if strings.Contains(s, "://") {
			return s
		}
		segments := strings.Split(s, "/")
		for i, seg := range segments {
			segments[i] = url.PathEscape(seg)
		}
		return strings.Join(segments, "/")
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: %s", ErrMissingPathParam, strings.Join(missing, ", "))
	}
	return out, nil
}

// AddQuery merges params into the query string of rawURL
func AddQuery(rawURL string, params map[string]any) (string, error) {
	if len(params) == 0 {
		return rawURL, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	q := u.Query()
	for _, k := range sortedKeys(params) {
		v := params[k]
		if v == nil {
			continue
		}
		if list, ok := v.([]any); ok {
			for _, item := range list {
				q.Add(k, Stringify(item))
			}
			continue
		}
		q.Set(k, Stringify(v))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// EncodeBody serializes body for the given content type.
// It returns a nil reader when there is nothing to send.
func EncodeBody(contentType string, body map[string]any) (io.Reader, string, error) {
	if len(body) == 0 {
		return nil, "", nil
	}
	if strings.HasPrefix(contentType, ContentTypeForm) {
		form := url.Values{}
		for _, k := range sortedKeys(body) {
			if body[k] == nil {
				continue
			}
			form.Set(k, Stringify(body[k]))
		}
		return strings.NewReader(form.Encode()), ContentTypeForm, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode request body: %w", err)
	}
	return bytes.NewReader(data), ContentTypeJSON, nil
}

// DecodeResponse parses a response body as JSON.
// Bodies that are not valid JSON are wrapped as {"raw": text}.
func DecodeResponse(body []byte) (any, bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return map[string]any{"raw": ""}, false
	}
	var data any
	if err := json.Unmarshal(trimmed, &data); err != nil {
		return map[string]any{"raw": string(body)}, false
	}
	return data, true
}

// Stringify renders a value for URLs, forms and headers.
// Objects and arrays are JSON encoded.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case int, int64, int32:
		return fmt.Sprintf("%d", val)
	case bool:
		return fmt.Sprintf("%t", val)
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
