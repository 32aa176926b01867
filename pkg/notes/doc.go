// Package notes implements note CRUD and the note listing query.
//
// Listing is the heavy path. The scope always anchors on a space: either
// supplied directly or derived from a parent note's topic, and a request
// with neither is rejected before any store access. The caller's
// accessible topic set then bounds every query, so a user can never page
// into content their roles do not reach, and an empty set short-circuits
// to an empty page without touching the notes table.
//
// Returned notes are enriched with tag names, a preview of the parent's
// text and a direct reply count. Enrichment is batched per page, one
// query per concern, never one per note.
package notes
