// Package crawler defines the core types shared across subsystems: article records and drafts,
// source definitions, fetch requests, the error taxonomy and the interfaces implemented by
// fetchers, stores, publishers and clocks.
package crawler
