package usecase

import (
	"encoding/csv"
	"fmt"
	"strings"

	"mailrun/internal/core/domain"
)

// parseInlineList turns an inline group's literal payload into recipient refs
// with synthetic ids. Entries are deduplicated by case-insensitive email; the
// name of the first occurrence wins, later names are discarded. This is the
// only place inline lists are deduplicated.
func parseInlineList(g *domain.RecipientGroup) ([]domain.RecipientRef, error) {
	var entries []inlineEntry
	var err error
	switch g.ListLayout {
	case domain.ListFormatCSV:
		entries, err = parseCSVList(g.RawList, g.CSVColumns)
		if err != nil {
			return nil, err
		}
	default:
		entries = parseFreeformList(g.RawList)
	}

	refs := make([]domain.RecipientRef, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		email := strings.TrimSpace(e.email)
		if !strings.Contains(email, "@") {
			continue
		}
		key := strings.ToLower(email)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		n := int64(len(refs) + 1)
		if n >= domain.InlineIDStride {
			return nil, fmt.Errorf("inline list of group %d exceeds %d entries", g.ID, domain.InlineIDStride-1)
		}
		refs = append(refs, domain.RecipientRef{
			ID:          g.ID*domain.InlineIDStride + n,
			Email:       email,
			Name:        strings.TrimSpace(e.name),
			HTMLAllowed: g.HTMLAllowed,
			Categories:  append([]int64(nil), g.CategoryIDs...),
		})
	}
	return refs, nil
}

type inlineEntry struct {
	email string
	name  string
}

// parseFreeformList splits a raw address list on commas, semicolons and
// whitespace. Blank pieces are ignored. Freeform entries carry no name.
func parseFreeformList(raw string) []inlineEntry {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	entries := make([]inlineEntry, 0, len(fields))
	for _, f := range fields {
		entries = append(entries, inlineEntry{email: f})
	}
	return entries
}

// parseCSVList reads a CSV payload using the declared column mapping. Columns
// named "email" and "name" are picked up; anything else is ignored. Without a
// mapping the first column is the email and the second the name.
func parseCSVList(raw string, columns []string) ([]inlineEntry, error) {
	r := csv.NewReader(strings.NewReader(raw))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv list: %w", err)
	}

	emailCol, nameCol := 0, 1
	for i, c := range columns {
		switch strings.ToLower(strings.TrimSpace(c)) {
		case "email":
			emailCol = i
		case "name":
			nameCol = i
		}
	}

	entries := make([]inlineEntry, 0, len(records))
	for _, rec := range records {
		var e inlineEntry
		if emailCol < len(rec) {
			e.email = rec[emailCol]
		}
		if nameCol < len(rec) {
			e.name = rec[nameCol]
		}
		if strings.TrimSpace(e.email) == "" {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}
