// Package classify turns an inbound help request into ticket metadata:
// category, priority, urgency, a technical flag, and a summary. The model
// is treated as untrusted input; anything malformed degrades to safe
// defaults instead of failing the intake pipeline.
package classify

import (
	"context"
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// Allowed categories. Anything else the model invents is coerced to General.
var categories = map[string]bool{
	"IT":         true,
	"HR":         true,
	"Finance":    true,
	"Facilities": true,
	"General":    true,
}

// Item is the inbound request handed to the classifier.
type Item struct {
	From    string
	Subject string
	Body    string
}

// Classification is the ticket metadata produced for one item.
type Classification struct {
	Category         string `json:"category"`
	Priority         int    `json:"priority"`
	Urgency          int    `json:"urgency"`
	Technical        bool   `json:"is_technical"`
	ShortDescription string `json:"short_description"`
	Description      string `json:"description"`
}

// Classifier produces a Classification for an inbound item. Implementations
// must degrade to Defaults rather than returning errors for bad model
// output; an error means the item could not be classified at all and the
// caller should still proceed with Defaults.
type Classifier interface {
	Classify(ctx context.Context, item Item) (Classification, error)
}

// Defaults is the safe classification used when the model is unavailable
// or its output can't be parsed.
func Defaults(item Item) Classification {
	short := strings.TrimSpace(item.Subject)
	if short == "" {
		short = "Support Request"
	}
	desc := strings.TrimSpace(item.Body)
	if desc == "" {
		desc = short
	}
	return Classification{
		Category:         "General",
		Priority:         3,
		Urgency:          3,
		Technical:        false,
		ShortDescription: short,
		Description:      desc,
	}
}

// Static is a Classifier that always returns Defaults. Used when no model
// API key is configured, and in tests.
type Static struct{}

func (Static) Classify(_ context.Context, item Item) (Classification, error) {
	return Defaults(item), nil
}

// parse extracts a Classification from raw model output. The model is asked
// for bare JSON but routinely wraps it in prose or markdown fences, so this
// scans for the outermost object. Any parse failure returns Defaults.
func parse(raw string, item Item) Classification {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return Defaults(item)
	}

	var c Classification
	if err := json.Unmarshal([]byte(raw[start:end+1]), &c); err != nil {
		return Defaults(item)
	}
	return sanitize(c, item)
}

// sanitize clamps model output into the ranges the service desk accepts.
func sanitize(c Classification, item Item) Classification {
	def := Defaults(item)
	if !categories[c.Category] {
		c.Category = def.Category
	}
	if c.Priority < 1 || c.Priority > 4 {
		c.Priority = def.Priority
	}
	if c.Urgency < 1 || c.Urgency > 4 {
		c.Urgency = def.Urgency
	}
	if strings.TrimSpace(c.ShortDescription) == "" {
		c.ShortDescription = def.ShortDescription
	}
	if len(c.ShortDescription) > 160 {
		cut := 160
		for cut > 0 && !utf8.RuneStart(c.ShortDescription[cut]) {
			cut--
		}
		c.ShortDescription = c.ShortDescription[:cut]
	}
	if strings.TrimSpace(c.Description) == "" {
		c.Description = def.Description
	}
	return c
}
