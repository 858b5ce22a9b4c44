// Package listing owns the paginated, filtered subscription list.
//
// Search and status changes reset to page 1, navigation stops at either end,
// and every change issues exactly one query. Responses are applied only if
// they answer the most recently issued query, so a slow response for an
// old filter never replaces a newer one.
package listing
