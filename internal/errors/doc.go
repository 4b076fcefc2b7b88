// Package errors provides coded, user-facing errors for the collabcode
// command line.
//
// Every error carries a stable code (e.g. "C101"), a category, a short
// message and optionally a longer detail and a suggestion:
//
//	return errors.New("C101").
//	    WithDetail("unexpected '}' at line 4").
//	    WithSuggestion("Check collabcode.json for a trailing comma")
//
// Use PrintError to render an error to the terminal.
package errors
