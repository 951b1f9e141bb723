// Package fakes provides test doubles for the Conjur API and the credential
// store.
//
// Fakes are manually implemented (not generated) to provide precise control
// over test behavior.
//
// Usage:
//
//	srv := fakes.NewFakeConjurServer("myorg").
//	    WithAPIKey("host/app", "api-key").
//	    WithSecret("db/password", "s3cret")
//	defer srv.Close()
//
//	store := fakes.NewFakeCredentialStore().
//	    WithAPIKey(srv.URL(), "host/app", "api-key")
package fakes
