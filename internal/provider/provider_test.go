package provider

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/aviary-ai/aviary/internal/config"
	"github.com/aviary-ai/aviary/internal/model"
)

type fakeClient struct {
	response string
	usage    *model.TokenUsage
	err      error
	lastReq  Request
}

func (f *fakeClient) Complete(_ context.Context, req Request) (string, *model.TokenUsage, error) {
	f.lastReq = req
	return f.response, f.usage, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewRegistryKinds(t *testing.T) {
	r := NewRegistry(map[string]config.ProviderConfig{
		"openai":    {Kind: "openai", APIKey: "sk-1"},
		"anthropic": {Kind: "anthropic", APIKey: "sk-2"},
		"local":     {Kind: "openai-compatible", BaseURL: "http://localhost:11434/v1"},
		"off":       {Kind: "openai", Disabled: true},
		"odd":       {Kind: "carrier-pigeon"},
	}, testLogger())

	for _, id := range []string{"openai", "anthropic", "local"} {
		if !r.Active(id) {
			t.Errorf("expected provider '%s' to be active", id)
		}
	}
	for _, id := range []string{"off", "odd", "missing"} {
		if r.Active(id) {
			t.Errorf("expected provider '%s' to be inactive", id)
		}
	}
}

func TestCallSuccess(t *testing.T) {
	r := NewRegistry(nil, testLogger())
	fake := &fakeClient{
		response: "the answer",
		usage:    &model.TokenUsage{InputTokens: 10, OutputTokens: 20},
	}
	r.Register("openai", fake)

	unit := model.ReportModel{Provider: "openai", Model: "gpt-4o", AgentID: "coder"}
	res := r.Call(context.Background(), Request{Unit: unit, Prompt: "hello"})

	if !res.OK {
		t.Fatalf("expected ok result, got error '%s'", res.Err)
	}
	if res.Key != "coder" {
		t.Errorf("expected key 'coder', got '%s'", res.Key)
	}
	if res.Response != "the answer" {
		t.Errorf("unexpected response: %s", res.Response)
	}
	if res.Usage == nil || res.Usage.OutputTokens != 20 {
		t.Errorf("unexpected usage: %+v", res.Usage)
	}
	if fake.lastReq.Prompt != "hello" {
		t.Errorf("prompt not passed through: %s", fake.lastReq.Prompt)
	}
}

func TestCallFailure(t *testing.T) {
	r := NewRegistry(nil, testLogger())
	r.Register("openai", &fakeClient{err: errors.New("rate limited")})

	unit := model.ReportModel{Provider: "openai", Model: "gpt-4o"}
	res := r.Call(context.Background(), Request{Unit: unit, Prompt: "hello"})

	if res.OK {
		t.Fatal("expected failed result")
	}
	if res.Err != "rate limited" {
		t.Errorf("unexpected error: %s", res.Err)
	}
	if res.Key != "swarm:openai:gpt-4o" {
		t.Errorf("unexpected key: %s", res.Key)
	}
}

func TestCallUnconfiguredProvider(t *testing.T) {
	r := NewRegistry(nil, testLogger())

	unit := model.ReportModel{Provider: "mistral", Model: "mistral-large"}
	res := r.Call(context.Background(), Request{Unit: unit})

	if res.OK {
		t.Fatal("expected failed result for unconfigured provider")
	}
	if res.Err == "" {
		t.Error("expected error message")
	}
}
