// Package audit turns a ledger excerpt and three frames into a verdict.
//
// Submitter is the narrow seam around the reasoning service. LLMSubmitter
// sends one multimodal chat request with the instruction in SystemPrompt and
// parses the reply with ParseResult; Fake returns canned results in tests.
//
// ParseResult is deliberately forgiving about field spellings but strict
// about shape: an unknown risk level, an unnamed item or a non-JSON reply
// fails the whole audit with an ErrParse error. Item status is always derived
// locally from the claimed and actual quantities, never taken from the model.
package audit
