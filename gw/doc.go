// Package gw holds the types and error taxonomy shared between the
// gateway's inbound surface and its dispatch core.
//
// Errors follow the sentinel + structured type pattern: match broad
// categories with errors.Is against the Err* sentinels, extract details
// with errors.As against the concrete error types.
package gw
