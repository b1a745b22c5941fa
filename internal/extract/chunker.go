package extract

import "strings"

// SplitText cuts conversation text into bounded, overlapping windows,
// preferring paragraph boundaries so a fact is not lost mid-sentence at a
// chunk edge. Overlap re-covers the boundary region in the next chunk.
func SplitText(text string, chunkSize, overlap int) []string {
	if chunkSize <= 0 {
		chunkSize = 1500
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = chunkSize / 8
	}
	if len(text) <= chunkSize {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		return []string{trimmed}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + chunkSize

		if end < len(text) {
			searchStart := start + chunkSize/2
			if s := end - 200; s > searchStart {
				searchStart = s
			}
			searchEnd := end + 200
			if searchEnd > len(text) {
				searchEnd = len(text)
			}

			if pos := strings.LastIndex(text[searchStart:searchEnd], "\n\n"); pos >= 0 {
				end = searchStart + pos + 2
			} else if pos := strings.LastIndex(text[searchStart:min(end+100, len(text))], "\n"); pos >= 0 {
				end = searchStart + pos + 1
			}
		}
		if end > len(text) {
			end = len(text)
		}

		chunk := strings.TrimSpace(text[start:end])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end >= len(text) {
			break
		}
		// A boundary break can pull end close to start; the overlap step
		// must never move the window backwards.
		if next := end - overlap; next > start {
			start = next
		} else {
			start = end
		}
	}

	return chunks
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
