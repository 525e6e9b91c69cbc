// ABOUTME: Built-in tools every gateway instance offers
// ABOUTME: Small utilities with no side effects outside the turn

package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// RegisterBuiltins adds the built-in tool set to a registry.
func RegisterBuiltins(r *Registry) {
	r.Register(CurrentTime())
	r.Register(WordCount())
}

// CurrentTime reports the current wall-clock time, optionally in a named
// IANA timezone.
func CurrentTime() *Tool {
	return &Tool{
		Name:           "current_time",
		Description:    "Get the current date and time, optionally in a specific IANA timezone",
		ParametersJSON: `{"type":"object","properties":{"timezone":{"type":"string","description":"IANA timezone name, e.g. Europe/Amsterdam"}}}`,
		Handler: func(_ context.Context, input json.RawMessage) (string, error) {
			var args struct {
				Timezone string `json:"timezone"`
			}
			if len(input) > 0 {
				if err := json.Unmarshal(input, &args); err != nil {
					return "", fmt.Errorf("invalid arguments: %w", err)
				}
			}

			loc := time.Local
			if args.Timezone != "" {
				var err error
				loc, err = time.LoadLocation(args.Timezone)
				if err != nil {
					return "", fmt.Errorf("unknown timezone %q", args.Timezone)
				}
			}
			return time.Now().In(loc).Format("Monday, 2 January 2006 15:04:05 MST"), nil
		},
	}
}

// WordCount counts words and characters in a text.
func WordCount() *Tool {
	return &Tool{
		Name:           "word_count",
		Description:    "Count the words and characters in a piece of text",
		ParametersJSON: `{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`,
		Handler: func(_ context.Context, input json.RawMessage) (string, error) {
			var args struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal(input, &args); err != nil {
				return "", fmt.Errorf("invalid arguments: %w", err)
			}
			words := len(strings.Fields(args.Text))
			chars := utf8.RuneCountInString(args.Text)
			return fmt.Sprintf("%d words, %d characters", words, chars), nil
		},
	}
}
