package docstore

// Key prefixes for the document collections and their indexes.
// Record ids are UUIDs, so ':' never appears inside a key segment.
const (
	paperPrefix           = "pap"  // pap:<id> -> paper document
	paperDOIPrefix        = "doi"  // doi:<doi> -> paper id (uniqueness + lookup)
	notePrefix            = "not"  // not:<id> -> note document
	citationPrefix        = "cit"  // cit:<source>:<target> -> citation document
	citationReversePrefix = "citr" // citr:<target>:<source> -> source id
)

func paperKey(id string) []byte {
	return []byte(paperPrefix + ":" + id)
}

func paperDOIKey(doi string) []byte {
	return []byte(paperDOIPrefix + ":" + doi)
}

func noteKey(id string) []byte {
	return []byte(notePrefix + ":" + id)
}

// citationKey embeds the ordered pair, so pair uniqueness falls out of
// key uniqueness.
func citationKey(sourceID, targetID string) []byte {
	return []byte(citationPrefix + ":" + sourceID + ":" + targetID)
}

func citationSourceScanPrefix(sourceID string) []byte {
	return []byte(citationPrefix + ":" + sourceID + ":")
}

func citationReverseKey(targetID, sourceID string) []byte {
	return []byte(citationReversePrefix + ":" + targetID + ":" + sourceID)
}

func citationReverseScanPrefix(targetID string) []byte {
	return []byte(citationReversePrefix + ":" + targetID + ":")
}
