// Copyright 2024-2026 Aiku AI

package connector

import "strings"

// hardMessageSizeLimit is Slack's absolute cap on message text. The
// configured soft limit may never exceed it.
const hardMessageSizeLimit = 40000

const codeFence = "```"

// splitMessage splits body into chunks of at most limit characters,
// preferring newline boundaries. A chunk that ends inside an open code
// fence gets a closing fence appended, and the next chunk re-opens it, so
// every chunk renders as valid mrkdwn on its own. No input byte is ever
// dropped: a boundary newline stays at the end of the leading chunk, so
// concatenating the chunks minus the repair fences yields the original
// body exactly.
func splitMessage(body string, limit int) []string {
	if limit <= 0 || limit > hardMessageSizeLimit {
		limit = hardMessageSizeLimit
	}
	if len(body) <= limit {
		return []string{body}
	}
	// Reserve room for a repair fence and its newline on both sides.
	budget := limit - 2*(len(codeFence)+1)
	if budget < 1 {
		budget = 1
	}

	var chunks []string
	inFence := false
	rest := body
	for len(rest) > 0 {
		if len(rest) <= budget && !inFence {
			chunks = append(chunks, rest)
			break
		}
		cut := budget
		if cut > len(rest) {
			cut = len(rest)
		}
		// Prefer breaking at a newline inside the window. The newline
		// itself stays with the leading chunk so no byte is lost.
		if idx := strings.LastIndexByte(rest[:cut], '\n'); idx > 0 {
			cut = idx + 1
		}
		chunk := rest[:cut]
		rest = rest[cut:]

		wasInFence := inFence
		if strings.Count(chunk, codeFence)%2 == 1 {
			inFence = !inFence
		}
		if wasInFence {
			chunk = codeFence + "\n" + chunk
		}
		if inFence {
			chunk += "\n" + codeFence
		}
		if len(rest) == 0 && !inFence {
			chunks = append(chunks, chunk)
			break
		}
		chunks = append(chunks, chunk)
	}
	if len(chunks) == 0 {
		chunks = []string{""}
	}
	return chunks
}
