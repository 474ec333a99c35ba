// Package cache implements the content-addressed pull-through byte cache.
//
// Entries live under StoragePath/<namespace>/<path>, where the path is derived
// only from the sha256 digest of the locator: local_cache holds one flat file
// per request URL, custom_cache mirrors the requested sub-path beneath the
// digest of its base URL. Every entry has a sidecar metadata record under
// StoragePath/.meta that replays the upstream content type on later hits.
// Entries are write-once and never evicted; each successful write appends a
// (digest, locator) row to the namespace's cache_inventory.csv.
package cache
