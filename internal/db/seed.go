package db

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Seed inserts demo data into the mailrun database: a small page tree,
// contacts and members with category subscriptions, one group of each kind
// and a scheduled campaign with segmented content.
func Seed(ctx context.Context, db *pgxpool.Pool) error {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	// page tree: one root per site with two children each
	for site := int64(1); site <= 2; site++ {
		rootID := site*10 + 1
		_, err := db.Exec(ctx, `INSERT INTO pages (id, parent_id, site_id, title)
VALUES ($1, NULL, $2, $3) ON CONFLICT DO NOTHING`,
			rootID, site, fmt.Sprintf("Site %d root", site))
		if err != nil {
			return err
		}
		for j := int64(1); j <= 2; j++ {
			_, err = db.Exec(ctx, `INSERT INTO pages (id, parent_id, site_id, title)
VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`,
				rootID+j, rootID, site, fmt.Sprintf("Section %d.%d", site, j))
			if err != nil {
				return err
			}
		}
	}

	for i := 1; i <= 3; i++ {
		_, err := db.Exec(ctx, `INSERT INTO categories (id, name)
VALUES ($1, $2) ON CONFLICT DO NOTHING`, i, fmt.Sprintf("Topic %d", i))
		if err != nil {
			return err
		}
	}

	// contacts and members spread over the page tree
	pageIDs := []int64{11, 12, 13, 21, 22, 23}
	for i := 1; i <= 40; i++ {
		pageID := pageIDs[r.Intn(len(pageIDs))]
		htmlAllowed := r.Intn(4) > 0
		_, err := db.Exec(ctx, `INSERT INTO contacts
(id, page_id, email, name, first_name, title, city, country, html_allowed)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) ON CONFLICT DO NOTHING`,
			i, pageID, fmt.Sprintf("contact%d@example.org", i),
			fmt.Sprintf("Contact %d", i), fmt.Sprintf("First%d", i), "Dr.",
			"Springfield", "US", htmlAllowed)
		if err != nil {
			return err
		}
		_, err = db.Exec(ctx, `INSERT INTO contact_categories (contact_id, category_id)
VALUES ($1, $2) ON CONFLICT DO NOTHING`, i, r.Intn(3)+1)
		if err != nil {
			return err
		}
	}
	for i := 1; i <= 20; i++ {
		pageID := pageIDs[r.Intn(len(pageIDs))]
		_, err := db.Exec(ctx, `INSERT INTO members
(id, page_id, email, name, first_name, html_allowed, active)
VALUES ($1,$2,$3,$4,$5,$6,$7) ON CONFLICT DO NOTHING`,
			i, pageID, fmt.Sprintf("member%d@example.org", i),
			fmt.Sprintf("Member %d", i), fmt.Sprintf("M%d", i), true, i%7 != 0)
		if err != nil {
			return err
		}
		_, err = db.Exec(ctx, `INSERT INTO member_categories (member_id, category_id)
VALUES ($1, $2) ON CONFLICT DO NOTHING`, i, r.Intn(3)+1)
		if err != nil {
			return err
		}
	}

	// one group of each kind
	_, err := db.Exec(ctx, `INSERT INTO recipient_groups
(id, name, kind, page_ids, recursive, sources, category_ids)
VALUES (1, 'Site 1 subscribers', 'pages', '{11}', TRUE, '{contacts,members}', '{}')
ON CONFLICT DO NOTHING`)
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, `INSERT INTO recipient_groups (id, name, kind)
VALUES (2, 'Editors', 'static') ON CONFLICT DO NOTHING`)
	if err != nil {
		return err
	}
	for _, contactID := range []int64{1, 2, 3} {
		_, err = db.Exec(ctx, `INSERT INTO group_members (group_id, source, member_id)
VALUES (2, 'contacts', $1) ON CONFLICT DO NOTHING`, contactID)
		if err != nil {
			return err
		}
	}
	_, err = db.Exec(ctx, `INSERT INTO recipient_groups
(id, name, kind, raw_list, list_format, html_allowed)
VALUES (3, 'Press list', 'inline',
        'press@example.org Jane Doe, news@example.org', 'plain', TRUE)
ON CONFLICT DO NOTHING`)
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, `INSERT INTO recipient_groups (id, name, kind, child_ids)
VALUES (4, 'Everyone', 'composite', '{1,2,3}') ON CONFLICT DO NOTHING`)
	if err != nil {
		return err
	}

	htmlBody := `<p>Hello ###firstname###,</p>
<!--CONTENT_BOUNDARY_1-->
<p>News for topic one readers: <a href="https://example.org/one">read more</a>.</p>
<!--CONTENT_BOUNDARY_END-->
<!--CONTENT_BOUNDARY_2,3-->
<p>Updates for topics two and three.</p>
<!--CONTENT_BOUNDARY_END-->
<p>Regards, the team</p>`
	plainBody := `Hello ###firstname###,

Latest news: https://example.org/one

Regards, the team`
	htmlLinks := `[{"id": 1, "url": "https://example.org/one", "label": "read more"}]`

	_, err = db.Exec(ctx, `INSERT INTO campaigns
(id, subject, from_name, from_email, html_body, plain_body, category_ids,
 html_links, redirect_mode, redirect_base, group_ids, scheduled_at, draft, send_per_tick)
VALUES (1, 'Monthly newsletter', 'Mailrun', 'news@example.org', $1, $2, '{1,2,3}',
        $3, 'long', 'http://localhost:8080', '{4}', now() - interval '1 hour', FALSE, 10)
ON CONFLICT DO NOTHING`, htmlBody, plainBody, htmlLinks)
	return err
}
