// Package store defines the article persistence contract and the fill-missing merge rule shared
// by the backends. Implementations live in internal/storage; this package must not import
// database drivers or concrete clients.
package store
