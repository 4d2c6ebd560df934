// Package marketplace is the typed surface of the stays-and-guides backend.
//
// Every call goes through a *goSession.Client, so an expired session is
// renewed and the call replayed without the caller noticing. Responses use
// the backend's {data, message} envelope; Message extracts the backend's
// explanation from a failed call.
//
// Inputs are checked with struct tags before any request is sent. Business
// rules (pricing, availability, KYC approval) stay on the server.
package marketplace
