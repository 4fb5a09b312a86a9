package usecase

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/encoding/htmlindex"

	"mailrun/internal/core/domain"
	"mailrun/internal/core/port"
)

// placeholderFields is the fixed allow-list of recipient attributes available
// to ###FIELD### substitution. Installation-specific additions go through
// Recipient.Extra.
var placeholderFields = []string{
	"name", "firstname", "title", "email", "phone", "www",
	"address", "company", "city", "zip", "country", "fax",
}

// uppercaseFields get an additional ###FIELD### variant in capitals carrying
// the uppercased value, for salutation templates.
var uppercaseFields = []string{"name", "firstname", "title"}

var plainURLPattern = regexp.MustCompile(`https?://[^\s<>"']+`)

// Personalizer rebuilds per-recipient message bodies from pre-split segments
// and substitutes placeholder tokens.
type Personalizer struct {
	organization string
	logger       *slog.Logger
}

func NewPersonalizer(organization string, logger *slog.Logger) *Personalizer {
	return &Personalizer{organization: organization, logger: logger}
}

// NewCorrelationToken derives the campaign-and-recipient-unique token stamped
// into outgoing messages and used as unsubscribe/authentication code.
func NewCorrelationToken(campaignID int64, source domain.SourceTag, recipientID int64) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%d|%s|%d|%s", campaignID, source, recipientID, uuid.NewString())))
	return hex.EncodeToString(sum[:])
}

// Personalize composes the message for one recipient, or returns nil when no
// qualifying content remains after category filtering. The caller must then
// skip the recipient without sending.
func (p *Personalizer) Personalize(c *domain.Campaign, source domain.SourceTag, rcpt *domain.Recipient, segsHTML, segsPlain []domain.Segment, token string) (*port.ComposedMessage, error) {
	var htmlBody, plainBody string
	var htmlOK, plainOK bool

	if c.HTMLBody != "" && rcpt.HTMLAllowed {
		htmlBody, htmlOK = domain.Recompose(segsHTML, rcpt.Categories)
	}
	if c.PlainBody != "" {
		plainBody, plainOK = domain.Recompose(segsPlain, rcpt.Categories)
	}
	if !htmlOK && !plainOK {
		return nil, nil
	}
	if !htmlOK {
		htmlBody = ""
	}
	if !plainOK {
		plainBody = ""
	}

	subst, err := p.substitutions(c, rcpt)
	if err != nil {
		return nil, err
	}
	if htmlOK {
		htmlBody = applySubstitutions(htmlBody, subst)
		htmlBody = rewriteHTMLLinks(c, htmlBody, source, rcpt.ID, token)
	}
	if plainOK {
		plainBody = applySubstitutions(plainBody, subst)
		plainBody = rewritePlainLinks(c, plainBody, source, rcpt.ID, token)
	}

	msg := &port.ComposedMessage{
		CampaignID:   c.ID,
		Source:       source,
		RecipientID:  rcpt.ID,
		To:           rcpt.Email,
		ToName:       rcpt.Name,
		Subject:      c.Subject,
		FromName:     c.FromName,
		FromEmail:    c.FromEmail,
		ReplyToName:  c.ReplyToName,
		ReplyToEmail: c.ReplyToEmail,
		Priority:     c.Priority,
		Charset:      c.Charset,
		HTMLBody:     htmlBody,
		PlainBody:    plainBody,
		Headers: map[string]string{
			port.HeaderToken: token,
		},
		Token: token,
	}
	if p.organization != "" {
		msg.Headers[port.HeaderOrganization] = p.organization
	}
	return msg, nil
}

// substitutions builds the token table for one recipient, with values
// converted into the campaign's declared output charset. Tokens that resolve
// to nothing stay out of the table and remain literally in the output.
func (p *Personalizer) substitutions(c *domain.Campaign, rcpt *domain.Recipient) (map[string]string, error) {
	values := map[string]string{
		"name":      rcpt.Name,
		"firstname": rcpt.FirstName,
		"title":     rcpt.Title,
		"email":     rcpt.Email,
		"phone":     rcpt.Phone,
		"www":       rcpt.WWW,
		"address":   rcpt.Address,
		"company":   rcpt.Company,
		"city":      rcpt.City,
		"zip":       rcpt.Zip,
		"country":   rcpt.Country,
		"fax":       rcpt.Fax,
	}

	subst := make(map[string]string, len(values)*2+len(rcpt.Extra))
	for _, field := range placeholderFields {
		v, err := convertCharset(values[field], c.Charset)
		if err != nil {
			return nil, fmt.Errorf("encode field %s for recipient %d: %w", field, rcpt.ID, err)
		}
		subst["###"+field+"###"] = v
	}
	for _, field := range uppercaseFields {
		v := subst["###"+field+"###"]
		subst["###"+strings.ToUpper(field)+"###"] = strings.ToUpper(v)
	}
	for key, val := range rcpt.Extra {
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			continue
		}
		v, err := convertCharset(val, c.Charset)
		if err != nil {
			return nil, fmt.Errorf("encode extra field %s for recipient %d: %w", key, rcpt.ID, err)
		}
		subst["###"+key+"###"] = v
	}
	return subst, nil
}

func applySubstitutions(body string, subst map[string]string) string {
	if !strings.Contains(body, "###") {
		return body
	}
	for token, value := range subst {
		body = strings.ReplaceAll(body, token, value)
	}
	return body
}

// convertCharset re-encodes a value into the campaign output charset. UTF-8
// and unset charsets pass through. Unknown charsets are an error surfaced to
// the caller, who skips the recipient.
func convertCharset(value, charset string) (string, error) {
	if value == "" {
		return "", nil
	}
	cs := strings.ToLower(strings.TrimSpace(charset))
	if cs == "" || cs == "utf-8" || cs == "utf8" {
		return value, nil
	}
	enc, err := htmlindex.Get(cs)
	if err != nil {
		return "", err
	}
	out, err := enc.NewEncoder().String(value)
	if err != nil {
		return "", err
	}
	return out, nil
}

// ExtractPlainLinks returns the distinct absolute URLs of a plain-text body
// in first-seen order. Position n (0-based) corresponds to link id -(n+1),
// the plain-text counterpart of the positive HTML link ids.
func ExtractPlainLinks(body string) []string {
	matches := plainURLPattern.FindAllString(body, -1)
	seen := make(map[string]struct{}, len(matches))
	var urls []string
	for _, m := range matches {
		m = trimLinkPunct(m)
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		urls = append(urls, m)
	}
	return urls
}

// trimLinkPunct strips sentence punctuation the URL regex swallowed. A
// trailing ")" only comes off while unbalanced, so URLs with parentheses in
// the path survive intact.
func trimLinkPunct(url string) string {
	for {
		trimmed := strings.TrimRight(url, ".,")
		if strings.HasSuffix(trimmed, ")") &&
			strings.Count(trimmed, ")") > strings.Count(trimmed, "(") {
			trimmed = strings.TrimSuffix(trimmed, ")")
		}
		if trimmed == url {
			return url
		}
		url = trimmed
	}
}

// rewritePlainLinks replaces absolute URLs in the plain body with tracked
// redirect URLs carrying the negative link id and the correlation token.
// Ids are assigned from the full campaign body, not the recomposed subset,
// so a URL keeps the same id for every recipient.
func rewritePlainLinks(c *domain.Campaign, body string, source domain.SourceTag, recipientID int64, token string) string {
	if c.RedirectMode == domain.RedirectNone || c.RedirectBase == "" {
		return body
	}
	urls := ExtractPlainLinks(c.PlainBody)
	links := make([]domain.CampaignLink, len(urls))
	for i, url := range urls {
		links[i] = domain.CampaignLink{ID: -(i + 1), URL: url}
	}
	return replaceLinks(c, body, links, source, recipientID, token)
}

// rewriteHTMLLinks replaces the hyperlinks extracted at campaign-fetch time
// with tracked redirect URLs keyed by their stable positive ids.
func rewriteHTMLLinks(c *domain.Campaign, body string, source domain.SourceTag, recipientID int64, token string) string {
	if c.RedirectMode == domain.RedirectNone || c.RedirectBase == "" {
		return body
	}
	return replaceLinks(c, body, c.HTMLLinks, source, recipientID, token)
}

// replaceLinks substitutes each link URL with its tracked redirect URL,
// longest URL first so a link that is a prefix of another (homepage vs deep
// link) never swallows the longer one's occurrences.
func replaceLinks(c *domain.Campaign, body string, links []domain.CampaignLink, source domain.SourceTag, recipientID int64, token string) string {
	ordered := make([]domain.CampaignLink, 0, len(links))
	for _, link := range links {
		if link.URL != "" {
			ordered = append(ordered, link)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return len(ordered[i].URL) > len(ordered[j].URL)
	})
	for _, link := range ordered {
		body = strings.ReplaceAll(body, link.URL, trackedURL(c, link.ID, source, recipientID, token))
	}
	return body
}

func trackedURL(c *domain.Campaign, linkID int, source domain.SourceTag, recipientID int64, token string) string {
	base := strings.TrimRight(c.RedirectBase, "/")
	if c.RedirectMode == domain.RedirectShort {
		return fmt.Sprintf("%s/j/%d/%d/%s", base, c.ID, linkID, token)
	}
	return fmt.Sprintf("%s/jump?mid=%d&rid=%s_%d&aC=%s&jumpurl=%d",
		base, c.ID, source, recipientID, token, linkID)
}
