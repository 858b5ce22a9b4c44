// Package api provides the REST client for the subscription backend.
//
// Endpoints (relative to the configured base URL, e.g. http://localhost:8080/api):
//   - GET    /plans
//   - GET    /subscriptions?page=&limit=&status=&search=
//   - GET    /analytics
//   - POST   /subscriptions
//   - DELETE /subscriptions/{id}
//
// Every failure is returned as a *RequestError naming the operation. Non-2xx
// responses additionally wrap an *APIError. Requests are never retried
// automatically; the caller keeps its previous state and reports the error.
package api
