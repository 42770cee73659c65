// Package cdptab is a high level controller for a single browser tab driven
// over the Chrome DevTools Protocol.
//
// A Page owns one protocol session and reconciles its asynchronous event
// stream with a small number of in-flight commands, exposing a
// synchronous-looking API for navigation, screenshots, PDF printing, cookie
// management, script evaluation, and exposing Go functions callable from
// the remote page.
package cdptab
