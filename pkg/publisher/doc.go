// Package publisher maps URLs to publisher identities.
//
// A Ruleset is an ordered list of rules. Each rule has a CEL condition that
// sees the URL broken into components (see Location) and a CEL consequent
// that produces the identity. The first rule whose condition holds decides;
// a null consequent means the URL has no publisher.
package publisher
