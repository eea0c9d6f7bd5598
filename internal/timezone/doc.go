// Package timezone resolves caller time-zone identifiers and computes the
// Sunday-anchored week window used by the calendar handlers.
//
// Microsoft Graph mailbox settings may carry either an IANA name such as
// "Europe/Berlin" or a Windows display name such as "W. Europe Standard
// Time". Resolve accepts both, using a CLDR-derived mapping table for the
// Windows convention.
package timezone
