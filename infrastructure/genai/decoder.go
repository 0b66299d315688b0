package genai

import (
	"encoding/base64"
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"mindloom-backend/domain/core/validators"
)

// payloadMarker matches a fenced code block opener or an object key start,
// the two signatures of an embedded JSON payload inside prose
var payloadMarker = regexp.MustCompile("```|\\{\\s*\"")

// Decoder pulls usable output from a generation response. The service is
// free to put the payload in the conventional text slot, in a later part,
// in inline base64 data, in function-call arguments, or buried in a field
// the envelope does not model, so extraction runs from the cheap direct
// path down to an exhaustive string harvest.
type Decoder struct {
	validator *validators.MindMapValidator
	logger    *zap.Logger

	// harvested counts entries into the harvesting path, read by tests
	// asserting that direct extraction never falls through unnecessarily
	harvested int
}

// NewDecoder creates a response decoder
func NewDecoder(validator *validators.MindMapValidator, logger *zap.Logger) *Decoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decoder{validator: validator, logger: logger}
}

// ExtractCandidateText returns the most plausible text payload from the
// response, or "" when the response carries no usable text at all. The
// conventional first-candidate first-part location wins; harvesting runs
// only when that slot is empty.
func (d *Decoder) ExtractCandidateText(resp *GenerateResponse) string {
	if resp == nil {
		return ""
	}
	if text := directText(resp); text != "" {
		return text
	}
	return d.harvestText(resp)
}

// ExtractStructured returns a validated map from anywhere in the response,
// or nil when no part of it yields one. Every candidate part is tried
// before the harvesting fallback.
func (d *Decoder) ExtractStructured(resp *GenerateResponse) *validators.ValidatedMap {
	if resp == nil {
		return nil
	}

	for ci, candidate := range resp.Candidates {
		for pi, part := range candidate.Content.Parts {
			if vm := d.structuredFromPart(part); vm != nil {
				d.logger.Debug("Structured payload found in candidate part",
					zap.Int("candidate", ci),
					zap.Int("part", pi),
				)
				return vm
			}
		}
	}

	if text := d.harvestText(resp); text != "" {
		if vm := d.parseAndValidate(text); vm != nil {
			d.logger.Debug("Structured payload recovered by string harvest")
			return vm
		}
	}

	return nil
}

func (d *Decoder) structuredFromPart(part Part) *validators.ValidatedMap {
	if text := strings.TrimSpace(part.Text); text != "" {
		if vm := d.parseAndValidate(text); vm != nil {
			return vm
		}
	}

	if part.InlineData != nil && mimeIndicatesJSON(part.InlineData.MimeType) {
		if decoded, err := base64.StdEncoding.DecodeString(part.InlineData.Data); err == nil {
			if vm := d.parseAndValidate(string(decoded)); vm != nil {
				return vm
			}
		}
	}

	if part.FunctionCall != nil && len(part.FunctionCall.Args) > 0 {
		if vm := d.validator.Validate(part.FunctionCall.Args); vm != nil {
			return vm
		}
	}

	return nil
}

func (d *Decoder) parseAndValidate(text string) *validators.ValidatedMap {
	value, err := CleanAndParse(text)
	if err != nil {
		return nil
	}
	return d.validator.Validate(value)
}

// directText reads the conventional payload location: first candidate,
// first content part, text field
func directText(resp *GenerateResponse) string {
	if len(resp.Candidates) == 0 {
		return ""
	}
	parts := resp.Candidates[0].Content.Parts
	if len(parts) == 0 {
		return ""
	}
	return strings.TrimSpace(parts[0].Text)
}

// harvestText recursively collects every string in the response body and
// picks the one most likely to carry the payload: the first containing a
// payload marker, else the longest
func (d *Decoder) harvestText(resp *GenerateResponse) string {
	d.harvested++

	source := interface{}(resp.Raw)
	if resp.Raw == nil {
		// No raw body captured; walk the typed envelope instead
		var fallback map[string]interface{}
		if data, err := json.Marshal(resp); err == nil {
			if err := json.Unmarshal(data, &fallback); err == nil {
				source = fallback
			}
		}
	}

	var collected []string
	collectStrings(source, &collected)
	if len(collected) == 0 {
		return ""
	}

	for _, s := range collected {
		if payloadMarker.MatchString(s) {
			return s
		}
	}

	best := collected[0]
	for _, s := range collected[1:] {
		if len(s) > len(best) {
			best = s
		}
	}
	return best
}

// collectStrings walks maps in sorted key order so repeated harvests of
// the same response yield the same candidate ordering
func collectStrings(value interface{}, out *[]string) {
	switch v := value.(type) {
	case string:
		if s := strings.TrimSpace(v); s != "" {
			*out = append(*out, s)
		}
	case []interface{}:
		for _, item := range v {
			collectStrings(item, out)
		}
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			collectStrings(v[k], out)
		}
	}
}

func mimeIndicatesJSON(mimeType string) bool {
	return strings.Contains(strings.ToLower(mimeType), "json")
}
