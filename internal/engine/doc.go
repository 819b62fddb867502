// Package engine holds the two view-state engines of the platform.
//
// CatalogEngine loads topics and exercises once per mount, filters them by
// topic and difficulty and tracks which solutions are revealed. BoardEngine
// drives the discussion board between its list and thread views and submits
// posts and replies, re-fetching the affected list from the store after every
// successful write instead of inserting locally.
//
// Load failures never propagate: the affected list degrades to empty and the
// failure is logged and counted.
package engine
