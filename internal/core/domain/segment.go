package domain

import (
	"strconv"
	"strings"
)

// Message bodies are cut into category-tagged segments by boundary comments:
//
//	<!--CONTENT_BOUNDARY_2,5--> ... segment shown to categories 2 or 5
//	<!--CONTENT_BOUNDARY_END--> ... footer, always shown
//
// Text before the first boundary is an untagged header segment and is always
// shown. A body with no boundaries at all is one big untagged segment.
const (
	boundaryPrefix = "<!--CONTENT_BOUNDARY_"
	boundaryClose  = "-->"
	boundaryEnd    = "END"
)

// Segment is one ordered unit of a message body.
type Segment struct {
	Text string
	// Categories is the tag list of the segment. Empty means the segment is
	// always included.
	Categories []int64
	// End marks the terminal footer segment. It is always included but does
	// not count towards the has-content check.
	End bool
}

// SplitContent cuts body into ordered segments at boundary markers. Malformed
// markers (no closing comment) end the scan; the remaining text joins the
// last well-formed segment.
func SplitContent(body string) []Segment {
	segs := []Segment{}
	rest := body
	idx := strings.Index(rest, boundaryPrefix)
	if idx < 0 {
		return []Segment{{Text: body}}
	}
	segs = append(segs, Segment{Text: rest[:idx]})
	rest = rest[idx+len(boundaryPrefix):]

	for {
		end := strings.Index(rest, boundaryClose)
		if end < 0 {
			// Unterminated marker: keep the raw tail on the previous segment.
			segs[len(segs)-1].Text += boundaryPrefix + rest
			return segs
		}
		tag := rest[:end]
		rest = rest[end+len(boundaryClose):]

		next := strings.Index(rest, boundaryPrefix)
		var text string
		if next < 0 {
			text = rest
		} else {
			text = rest[:next]
			rest = rest[next+len(boundaryPrefix):]
		}

		seg := Segment{Text: text}
		if tag == boundaryEnd {
			seg.End = true
		} else {
			seg.Categories = parseCategoryTag(tag)
		}
		segs = append(segs, seg)

		if next < 0 {
			return segs
		}
	}
}

// parseCategoryTag parses a comma-separated id list. Malformed entries are
// dropped; a fully malformed tag yields nil, which makes the segment
// unconditional. That is the safe default: show, don't hide.
func parseCategoryTag(tag string) []int64 {
	var ids []int64
	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// Recompose rebuilds the body subset a recipient subscribed to the given
// categories is entitled to see. The second return value reports whether the
// result contains real content: header and footer boilerplate alone does not
// qualify, except for bodies that were never segmented at all.
func Recompose(segs []Segment, subscribed []int64) (string, bool) {
	if len(segs) == 0 {
		return "", false
	}
	if len(segs) == 1 {
		// No boundary markers: the single segment always counts as content.
		return segs[0].Text, true
	}

	broadcast := false
	for _, c := range subscribed {
		if c == BroadcastCategory {
			broadcast = true
			break
		}
	}

	var b strings.Builder
	hasContent := false
	last := len(segs) - 1
	for i, seg := range segs {
		include := seg.End || len(seg.Categories) == 0 || broadcast || intersects(seg.Categories, subscribed)
		if !include {
			continue
		}
		b.WriteString(seg.Text)
		if i == 0 || i == last || seg.End {
			continue
		}
		if strings.TrimSpace(seg.Text) != "" {
			hasContent = true
		}
	}
	return b.String(), hasContent
}

func intersects(a, b []int64) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
