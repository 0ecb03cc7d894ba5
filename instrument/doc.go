// Package instrument rewrites a JavaScript submission so that evaluating it
// reports intermediate values.
//
// The pipeline is lexical, not a parse. Segment groups lines into balanced
// statements using a Tracker, Classify recognises the statement shapes worth
// tracing, Rewrite wraps them in calls to the guest's __repl object, and Hoist
// moves function and class declarations into a batch that runs first.
//
// Rewritten text always occupies the same lines as the source it came from,
// so an error line in the guest is a line of the submission.
package instrument
