// Package aboutness generates the per-song "emotions" and "moments" profiles
// and runs the offline backfill that stores them.
//
// Each profile axis is produced from the title and artist alone by a chat
// model, validated, retried once when invalid, and as a last resort forced
// into shape with a low confidence tag. The backfill embeds both texts with
// the same embedding service used at query time and writes one row per song.
package aboutness
