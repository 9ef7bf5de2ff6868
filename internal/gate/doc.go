// Package gate implements the email quality gate.
//
// The gate is called once for every new email address a crawl discovers.
// It classifies the address (professional, role, free, disposable), checks
// its syntax and whether its domain accepts mail, infers a person name
// from the local part and produces a risk score from 0 to 100.
//
// The crawler only depends on the Gate interface, so any external
// verification service can be plugged in instead of Checker.
package gate
