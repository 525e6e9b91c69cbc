// Package window bounds a transcript to a token budget before it is sent to
// the model.
//
// The trimmer is a pure function: given an ordered message slice, a Counter
// and a budget, it returns the longest suffix that fits, constrained to
// start on a user message (some inference backends reject prompts that open
// mid-exchange). It is reused in two places with different budgets: prompt
// construction (context length minus reserved output tokens) and title
// summarization (TitleBudget with the message-count counter).
package window
