package compaction

import (
	"encoding/json"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/youssefsiam38/agentloop/types"
)

// ContentClass is the kind of text being estimated.
type ContentClass int

const (
	ClassProse ContentClass = iota
	ClassCode
	ClassJSON
)

// String returns the name of the class.
func (c ContentClass) String() string {
	switch c {
	case ClassJSON:
		return "json"
	case ClassCode:
		return "code"
	default:
		return "prose"
	}
}

// codeMarkers are substrings that rarely show up in prose.
var codeMarkers = []string{
	"func ",
	"function ",
	"def ",
	"class ",
	"import ",
	"return ",
	"#include",
	"=>",
	"==",
	"!=",
	"&&",
	"||",
	":=",
	"();",
	"){",
	") {",
	"};",
	"</",
}

// Estimator approximates token counts from character counts.
//
// It is a heuristic, not a tokenizer. The safety factor keeps estimates
// above the real count for typical content.
type Estimator struct {
	config EstimatorConfig
}

// NewEstimator creates an Estimator. A nil config uses the defaults.
func NewEstimator(config *EstimatorConfig) *Estimator {
	if config == nil {
		config = DefaultEstimatorConfig()
	} else {
		c := *config
		c.ApplyDefaults()
		config = &c
	}
	return &Estimator{config: *config}
}

// Classify returns the content class used for content.
func (e *Estimator) Classify(content string) ContentClass {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return ClassJSON
	}

	found := 0
	for _, marker := range codeMarkers {
		if strings.Contains(content, marker) {
			found++
			if found >= e.config.CodeMarkerThreshold {
				return ClassCode
			}
		}
	}
	return ClassProse
}

// Estimate returns the estimated token count of content. Empty content is 0.
func (e *Estimator) Estimate(content string) int {
	if content == "" {
		return 0
	}

	var ratio float64
	switch e.Classify(content) {
	case ClassJSON:
		ratio = e.config.JSONCharsPerToken
	case ClassCode:
		ratio = e.config.CodeCharsPerToken
	default:
		ratio = e.config.ProseCharsPerToken
	}

	raw := float64(utf8.RuneCountInString(content)) / ratio
	return int(math.Ceil(raw / e.config.SafetyFactor))
}

// EstimateMessage returns the estimated token count of a message: its
// content, thinking and tool calls.
func (e *Estimator) EstimateMessage(msg *types.Message) int {
	if msg == nil {
		return 0
	}

	total := e.Estimate(msg.Content) + e.Estimate(msg.Thinking)
	for _, call := range msg.ToolCalls {
		total += e.Estimate(call.Name)
		if len(call.Arguments) > 0 {
			total += e.EstimateJSON(call.Arguments)
		}
	}
	return total
}

// EstimateMessages returns the sum of EstimateMessage over msgs.
func (e *Estimator) EstimateMessages(msgs []*types.Message) int {
	total := 0
	for _, msg := range msgs {
		total += e.EstimateMessage(msg)
	}
	return total
}

// EstimateJSON estimates the JSON encoding of v. Values that cannot be
// encoded count as 0.
func (e *Estimator) EstimateJSON(v any) int {
	data, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return e.Estimate(string(data))
}
