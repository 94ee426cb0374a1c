// Package check contains the building blocks of the validation pipeline:
// syntax checking, domain classification, typo suggestion, cached MX
// resolution and optional WHOIS reputation lookups.
// These types can be used directly, but the recommended approach is
// to use the fluent builder API from the github.com/optimode/mailprobe package.
package check
