// Package permission answers "may the current actor perform action A on
// resource R?".
//
// A Set is loaded once per session by a Provider and travels explicitly:
// servers attach it to the request context with WithSet, clients hold it in
// a Gate that tracks session changes. Resolve is pure and never fails.
//
// Two providers exist. DevelopmentProvider allows everything and exists only
// for local work; PolicyProvider reads role permissions from a CUE policy
// file and denies whatever the policy does not grant. Which one runs is a
// configuration decision (permissions.mode), never a code default.
package permission
