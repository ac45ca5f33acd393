package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
)

const apiSystemPrompt = `You call a REST API to answer questions. These operations exist:
%s
If the question cannot be answered with these operations, answer exactly "I don't know".
Only use GET operations.
Otherwise respond with a JSON object {"method": "GET", "path": "<path with parameters filled in>", "query": {"name": "value"}} and nothing else.`

type apiCall struct {
	Method string            `json:"method"`
	Path   string            `json:"path"`
	Query  map[string]string `json:"query"`
}

// APIAgent answers questions by calling operations described by an OpenAPI document.
type APIAgent struct {
	doc     *openapi3.T
	baseURL *url.URL
	header  map[string]string
	llm     ChatModel
	http    *http.Client
}

// LoadSpec fetches and validates an OpenAPI document.
func LoadSpec(ctx context.Context, specURL string) (*openapi3.T, error) {
	u, err := url.Parse(specURL)
	if err != nil {
		return nil, fmt.Errorf("parse spec url: %w", err)
	}
	loader := openapi3.NewLoader()
	loader.Context = ctx
	loader.IsExternalRefsAllowed = true
	doc, err := loader.LoadFromURI(u)
	if err != nil {
		return nil, fmt.Errorf("load spec: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("invalid spec: %w", err)
	}
	return doc, nil
}

// NewAPIAgent resolves the base URL from the first server entry, relative to the spec location.
func NewAPIAgent(doc *openapi3.T, specURL string, header map[string]string, llm ChatModel) (*APIAgent, error) {
	spec, err := url.Parse(specURL)
	if err != nil {
		return nil, err
	}
	base := &url.URL{Scheme: spec.Scheme, Host: spec.Host}
	if len(doc.Servers) > 0 && doc.Servers[0].URL != "" {
		srv, err := url.Parse(doc.Servers[0].URL)
		if err != nil {
			return nil, fmt.Errorf("server url: %w", err)
		}
		base = spec.ResolveReference(srv)
	}
	return &APIAgent{
		doc:     doc,
		baseURL: base,
		header:  header,
		llm:     llm,
		http:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Operations lists "METHOD path - summary" lines in a stable order.
func (a *APIAgent) Operations() []string {
	var ops []string
	if a.doc.Paths == nil {
		return ops
	}
	for path, item := range a.doc.Paths.Map() {
		for method, op := range item.Operations() {
			line := method + " " + path
			if op.Summary != "" {
				line += " - " + op.Summary
			}
			for _, p := range op.Parameters {
				if p.Value != nil {
					line += fmt.Sprintf(" [%s %s]", p.Value.In, p.Value.Name)
				}
			}
			ops = append(ops, line)
		}
	}
	sort.Strings(ops)
	return ops
}

func (a *APIAgent) Run(ctx context.Context, question string) (*Answer, error) {
	raw, err := a.llm.Complete(ctx, fmt.Sprintf(apiSystemPrompt, strings.Join(a.Operations(), "\n")), question)
	if err != nil {
		return nil, err
	}
	text := stripFences(raw)
	if isDontKnow(text) {
		return &Answer{Result: DontKnow}, nil
	}

	var call apiCall
	if err := json.Unmarshal([]byte(text), &call); err != nil {
		return &Answer{Query: text}, fmt.Errorf("decode generated call: %w", err)
	}
	if call.Method == "" {
		call.Method = http.MethodGet
	}
	if !strings.EqualFold(call.Method, http.MethodGet) {
		return &Answer{Query: text}, ErrForbiddenStatement
	}
	if !strings.HasPrefix(call.Path, "/") {
		return &Answer{Query: text}, errors.New("generated path must be absolute")
	}

	target := *a.baseURL
	target.Path = strings.TrimRight(target.Path, "/") + call.Path
	q := target.Query()
	for k, v := range call.Query {
		q.Set(k, v)
	}
	target.RawQuery = q.Encode()
	query := http.MethodGet + " " + target.String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return &Answer{Query: query}, err
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range a.header {
		req.Header.Set(k, v)
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return &Answer{Query: query}, fmt.Errorf("call api: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &Answer{Query: query}, err
	}
	if resp.StatusCode >= 400 {
		return &Answer{Query: query}, fmt.Errorf("api returned %d: %s", resp.StatusCode, truncate(string(bytes.TrimSpace(body)), 300))
	}

	answer, err := a.llm.Complete(ctx, answerSystemPrompt,
		fmt.Sprintf("Question: %s\nRequest: %s\nResponse:\n%s", question, query, truncate(string(body), 4000)))
	if err != nil {
		return &Answer{Query: query}, err
	}
	return &Answer{Result: strings.TrimSpace(answer), Query: query}, nil
}

func (a *APIAgent) Close() error {
	a.http.CloseIdleConnections()
	if c, ok := a.llm.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
