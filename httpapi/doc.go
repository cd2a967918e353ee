// Package httpapi serves the session protocol over HTTP with a chi router.
//
// Public routes:
//
//	POST /auth/handshake   embedded-client init data -> session cookie + token
//	GET  /auth/profile     cookie or bearer -> principal profile
//	POST /auth/logout      clear cookie; {"allDevices":true} rotates the stamp first
//	GET  /auth/magic       ?token= -> session cookie + redirect
//
// Internal routes are mounted under /internal and require a trusted hop:
// magic token issue, stamp rotation, role change and soft delete.
//
// # Architecture boundaries
//
// Handlers decode requests, call the engine and map its errors through
// middleware.Status. They never inspect tokens or stamps themselves.
package httpapi
