// Package graph provides a client for the Microsoft Graph calendar API.
//
// The client covers the three operations the service needs: reading the
// caller's mailbox settings (time-zone preference), listing the calendar
// view for a time window, and creating events. Requests are authenticated
// with the caller's bearer token; a fresh client is constructed per request
// and nothing is cached.
//
// Remote failures are decoded from the OData error envelope into an
// *APIError carrying the status code and message the service reported.
package graph
