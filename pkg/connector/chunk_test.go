// Copyright 2024-2026 Aiku AI

package connector

import (
	"strings"
	"testing"
)

func TestSplitMessageShort(t *testing.T) {
	t.Parallel()
	chunks := splitMessage("hello world", 4000)
	if len(chunks) != 1 || chunks[0] != "hello world" {
		t.Errorf("splitMessage: got %q, want single unchanged chunk", chunks)
	}
}

func TestSplitMessageEmpty(t *testing.T) {
	t.Parallel()
	chunks := splitMessage("", 4000)
	if len(chunks) != 1 || chunks[0] != "" {
		t.Errorf("splitMessage(\"\"): got %q, want one empty chunk", chunks)
	}
}

func TestSplitMessagePrefersNewlines(t *testing.T) {
	t.Parallel()
	body := "first line here\nsecond line here\nthird line here"
	chunks := splitMessage(body, 30)
	if len(chunks) < 2 {
		t.Fatalf("splitMessage: got %d chunks, want at least 2", len(chunks))
	}
	for i, chunk := range chunks {
		if len(chunk) > 30 {
			t.Errorf("chunk %d exceeds limit: %q", i, chunk)
		}
		if strings.HasPrefix(chunk, "line") {
			t.Errorf("chunk %d cut mid-word despite newline boundary: %q", i, chunk)
		}
	}
	// Boundary newlines stay with the leading chunk, so plain
	// concatenation reproduces the body.
	if got := strings.Join(chunks, ""); got != body {
		t.Errorf("rejoined chunks differ from original:\ngot  %q\nwant %q", got, body)
	}
}

func TestSplitMessageRespectsLimit(t *testing.T) {
	t.Parallel()
	body := strings.Repeat("word test data\n", 100)
	for _, limit := range []int{50, 100, 1000} {
		for i, chunk := range splitMessage(body, limit) {
			if len(chunk) > limit {
				t.Errorf("limit %d: chunk %d has length %d", limit, i, len(chunk))
			}
		}
	}
}

func TestSplitMessageFenceRepair(t *testing.T) {
	t.Parallel()
	body := "intro\n```\n" + strings.Repeat("x", 50) + "\n```\noutro"
	chunks := splitMessage(body, 40)

	want := []string{
		"intro\n```\n\n```",
		"```\n" + strings.Repeat("x", 32) + "\n```",
		"```\n" + strings.Repeat("x", 18) + "\n```\n",
		"outro",
	}
	if len(chunks) != len(want) {
		t.Fatalf("splitMessage: got %d chunks %q, want %d", len(chunks), chunks, len(want))
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("chunk %d: got %q, want %q", i, chunks[i], want[i])
		}
	}

	// Every chunk must render as valid mrkdwn on its own: an even number
	// of fences means no chunk leaves a code block dangling.
	for i, chunk := range chunks {
		if strings.Count(chunk, codeFence)%2 != 0 {
			t.Errorf("chunk %d has an unbalanced code fence: %q", i, chunk)
		}
		if len(chunk) > 40 {
			t.Errorf("chunk %d exceeds limit: length %d", i, len(chunk))
		}
	}
}

func TestSplitMessageFenceRepairRoundTrip(t *testing.T) {
	t.Parallel()
	body := "intro\n```\n" + strings.Repeat("x", 50) + "\n```\noutro"
	chunks := splitMessage(body, 40)
	if len(chunks) != 4 {
		t.Fatalf("splitMessage: got %d chunks %q, want 4", len(chunks), chunks)
	}

	// Removing the repair fences (an appended "\n```" on chunks cut inside
	// a code block, a prepended "```\n" on their continuations) and
	// concatenating must yield the original body byte for byte.
	got := strings.Join([]string{
		strings.TrimSuffix(chunks[0], "\n"+codeFence),
		strings.TrimSuffix(strings.TrimPrefix(chunks[1], codeFence+"\n"), "\n"+codeFence),
		strings.TrimPrefix(chunks[2], codeFence+"\n"),
		chunks[3],
	}, "")
	if got != body {
		t.Errorf("reconstructed body differs:\ngot  %q\nwant %q", got, body)
	}
}

func TestSplitMessageLimitClamped(t *testing.T) {
	t.Parallel()
	body := strings.Repeat("a", 50)
	// Zero and oversized limits clamp to the hard cap, so a small body
	// stays whole.
	for _, limit := range []int{0, -5, hardMessageSizeLimit + 1} {
		chunks := splitMessage(body, limit)
		if len(chunks) != 1 || chunks[0] != body {
			t.Errorf("limit %d: got %d chunks, want 1 unchanged", limit, len(chunks))
		}
	}
}
