// Package api assembles the HTTP surface: the router, the middleware
// chain, and the handlers that do not belong to a single domain package
// (user registration, token lifecycle, audit trail reads).
//
// Domain routes are registered by their own packages (pkg/spaces,
// pkg/topics, pkg/notes); this package mounts them behind bearer-token
// authentication and rate limiting. Registration and token issuance are
// the only unauthenticated endpoints, limited per client IP.
//
// # Usage
//
//	server := api.NewServer(api.Deps{
//		Auth:    authStore,
//		Spaces:  spaceService,
//		Topics:  topicService,
//		Notes:   noteService,
//		Logger:  logger,
//	})
//	http.ListenAndServe(":8080", server)
package api
