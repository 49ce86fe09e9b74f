package genai

import (
	"context"
	"testing"

	"github.com/angelmondragon/gigmarket-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
)

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(context.Background(), config.GenAIConfig{APIKey: "  "}); err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestGenerateJSONWithoutClient(t *testing.T) {
	var c *Client
	_, err := c.GenerateJSON(context.Background(), "", "hi")
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestStripFence(t *testing.T) {
	cases := map[string]string{
		`{"a":1}`:                 `{"a":1}`,
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n{\"a\":1}```":       `{"a":1}`,
	}
	for in, want := range cases {
		if got := stripFence(in); got != want {
			t.Fatalf("stripFence(%q) = %q, want %q", in, got, want)
		}
	}
}
