// Response envelope types and reply extraction.
//
// The upstream document is modeled as a tagged-variant content block
// rather than an all-fields-optional object graph: extraction pattern
// matches on the block type instead of null-checking dozens of optional
// fields. Any additional or missing fields inside a well-formed object are
// tolerated; full schema validation is deliberately not performed.
package openai

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrMalformedBody marks an upstream body that is not a well-formed JSON
// object. It is detected before full parsing as a cheap well-formedness
// gate (the body must start with '{').
var ErrMalformedBody = errors.New("openai: response body is not a JSON object")

// contentTypeText tags a content block carrying plain text output.
const contentTypeText = "output_text"

// ContentBlock is one typed block inside an output item. Only text blocks
// participate in extraction; every other type is treated as opaque.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// IsText reports whether the block carries plain text output.
func (b ContentBlock) IsText() bool { return b.Type == contentTypeText }

// OutputItem is one element of the response's ordered output sequence.
type OutputItem struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Status  string         `json:"status"`
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// Response is the subset of the envelope that extraction needs.
type Response struct {
	ID     string       `json:"id"`
	Object string       `json:"object"`
	Status string       `json:"status"`
	Model  string       `json:"model"`
	Output []OutputItem `json:"output"`
}

// ExtractReply pulls the assistant reply out of a raw envelope body.
//
// Contract: take the LAST output item, filter its content blocks to text
// blocks, and return the FIRST one's text. When no such block exists the
// reply is absent, ("", nil) rather than an error. Bodies that do not start
// with '{' (or fail to parse) yield ErrMalformedBody.
func ExtractReply(body string) (string, error) {
	if !strings.HasPrefix(strings.TrimSpace(body), "{") {
		return "", ErrMalformedBody
	}
	var resp Response
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return "", ErrMalformedBody
	}
	if len(resp.Output) == 0 {
		return "", nil
	}
	last := resp.Output[len(resp.Output)-1]
	for _, block := range last.Content {
		if block.IsText() {
			return block.Text, nil
		}
	}
	return "", nil
}
