package usecase

import (
	"fmt"
	"strings"
	"testing"

	"mailrun/internal/core/domain"
	"mailrun/internal/core/port"
)

func TestPersonalizePlaceholders(t *testing.T) {
	c := &domain.Campaign{
		ID:       1,
		Subject:  "Hello",
		HTMLBody: "<p>Dear ###title### ###NAME###, from ###city###</p>",
	}
	rcpt := &domain.Recipient{
		ID:          5,
		Email:       "jo@example.org",
		Name:        "Jo Smith",
		Title:       "Dr.",
		HTMLAllowed: true,
	}
	p := NewPersonalizer("acme", discardLogger())
	segs := domain.SplitContent(c.HTMLBody)

	msg, err := p.Personalize(c, domain.SourceContacts, rcpt, segs, nil, "tok")
	if err != nil {
		t.Fatalf("Personalize: %v", err)
	}
	want := "<p>Dear Dr. JO SMITH, from </p>"
	if msg.HTMLBody != want {
		t.Errorf("got %q want %q", msg.HTMLBody, want)
	}
	if msg.Headers[port.HeaderToken] != "tok" {
		t.Errorf("token header missing: %v", msg.Headers)
	}
	if msg.Headers[port.HeaderOrganization] != "acme" {
		t.Errorf("organization header missing: %v", msg.Headers)
	}
}

func TestPersonalizeUnknownTokenStaysLiteral(t *testing.T) {
	c := &domain.Campaign{ID: 1, PlainBody: "Hi ###nosuchfield###"}
	rcpt := &domain.Recipient{ID: 1, Email: "a@example.org"}
	p := NewPersonalizer("", discardLogger())

	msg, err := p.Personalize(c, domain.SourceContacts, rcpt, nil, domain.SplitContent(c.PlainBody), "t")
	if err != nil {
		t.Fatalf("Personalize: %v", err)
	}
	if msg.PlainBody != "Hi ###nosuchfield###" {
		t.Errorf("unresolved token must stay literal, got %q", msg.PlainBody)
	}
}

func TestPersonalizeHTMLRequiresCapability(t *testing.T) {
	c := &domain.Campaign{ID: 1, HTMLBody: "<p>x</p>", PlainBody: "x"}
	rcpt := &domain.Recipient{ID: 1, Email: "a@example.org", HTMLAllowed: false}
	p := NewPersonalizer("", discardLogger())

	msg, err := p.Personalize(c, domain.SourceContacts, rcpt,
		domain.SplitContent(c.HTMLBody), domain.SplitContent(c.PlainBody), "t")
	if err != nil {
		t.Fatalf("Personalize: %v", err)
	}
	if msg.HTMLBody != "" {
		t.Errorf("html part must be dropped without capability, got %q", msg.HTMLBody)
	}
	if msg.PlainBody != "x" {
		t.Errorf("plain part lost: %q", msg.PlainBody)
	}
}

func TestPersonalizeNoQualifyingContent(t *testing.T) {
	body := "h<!--CONTENT_BOUNDARY_5-->only for five<!--CONTENT_BOUNDARY_END-->f"
	c := &domain.Campaign{ID: 1, PlainBody: body}
	rcpt := &domain.Recipient{ID: 1, Email: "a@example.org", Categories: []int64{8}}
	p := NewPersonalizer("", discardLogger())

	msg, err := p.Personalize(c, domain.SourceContacts, rcpt, nil, domain.SplitContent(body), "t")
	if err != nil {
		t.Fatalf("Personalize: %v", err)
	}
	if msg != nil {
		t.Fatalf("expected nil message for content-free recomposition, got %+v", msg)
	}
}

func TestExtractPlainLinks(t *testing.T) {
	body := "See https://example.org/a, then https://example.org/b.\nAgain https://example.org/a"
	urls := ExtractPlainLinks(body)
	if len(urls) != 2 {
		t.Fatalf("expected 2 distinct urls, got %v", urls)
	}
	if urls[0] != "https://example.org/a" || urls[1] != "https://example.org/b" {
		t.Errorf("unexpected urls: %v", urls)
	}
}

func TestExtractPlainLinksParentheses(t *testing.T) {
	body := "Read https://en.wikipedia.org/wiki/Go_(language) (or https://example.org/x)."
	urls := ExtractPlainLinks(body)
	if len(urls) != 2 {
		t.Fatalf("expected 2 urls, got %v", urls)
	}
	// balanced parentheses belong to the URL
	if urls[0] != "https://en.wikipedia.org/wiki/Go_(language)" {
		t.Errorf("balanced parenthesis stripped: %q", urls[0])
	}
	// the closing half of a surrounding parenthesis does not
	if urls[1] != "https://example.org/x" {
		t.Errorf("sentence punctuation kept: %q", urls[1])
	}
}

func TestRewritePlainLinksStableIDs(t *testing.T) {
	c := &domain.Campaign{
		ID:           3,
		RedirectMode: domain.RedirectLong,
		RedirectBase: "https://track.example.org",
		PlainBody: "intro\n" +
			"<!--CONTENT_BOUNDARY_5-->first https://example.org/a\n" +
			"<!--CONTENT_BOUNDARY_-->second https://example.org/b\n" +
			"<!--CONTENT_BOUNDARY_END-->bye",
	}
	p := NewPersonalizer("", discardLogger())

	// a recipient who never sees the first link
	rcpt := &domain.Recipient{ID: 9, Email: "a@example.org", Categories: []int64{1}}
	msg, err := p.Personalize(c, domain.SourceMembers, rcpt, nil, domain.SplitContent(c.PlainBody), "tok")
	if err != nil {
		t.Fatalf("Personalize: %v", err)
	}
	if strings.Contains(msg.PlainBody, "example.org/a") {
		t.Fatalf("excluded segment leaked: %q", msg.PlainBody)
	}
	// /b is the second link of the full body, so its id is -2 for everyone
	if !strings.Contains(msg.PlainBody, "jumpurl=-2") {
		t.Errorf("link id not assigned from full body: %q", msg.PlainBody)
	}
	if !strings.Contains(msg.PlainBody, "rid=members_9") || !strings.Contains(msg.PlainBody, "aC=tok") {
		t.Errorf("tracking parameters missing: %q", msg.PlainBody)
	}
}

func TestRewriteHTMLLinksShortMode(t *testing.T) {
	c := &domain.Campaign{
		ID:           4,
		RedirectMode: domain.RedirectShort,
		RedirectBase: "https://track.example.org/",
		HTMLBody:     `<a href="https://example.org/x">x</a>`,
		HTMLLinks:    []domain.CampaignLink{{ID: 1, URL: "https://example.org/x"}},
	}
	rcpt := &domain.Recipient{ID: 2, Email: "a@example.org", HTMLAllowed: true}
	p := NewPersonalizer("", discardLogger())

	msg, err := p.Personalize(c, domain.SourceContacts, rcpt, domain.SplitContent(c.HTMLBody), nil, "tok")
	if err != nil {
		t.Fatalf("Personalize: %v", err)
	}
	want := fmt.Sprintf(`<a href="https://track.example.org/j/%d/1/tok">x</a>`, c.ID)
	if msg.HTMLBody != want {
		t.Errorf("got %q want %q", msg.HTMLBody, want)
	}
}

func TestRewritePlainLinksPrefixURLs(t *testing.T) {
	// the first link is a prefix of the second; each must keep its own id
	c := &domain.Campaign{
		ID:           5,
		RedirectMode: domain.RedirectLong,
		RedirectBase: "https://track.example.org",
		PlainBody:    "home https://example.org/a deep https://example.org/a/b",
	}
	got := rewritePlainLinks(c, c.PlainBody, domain.SourceContacts, 1, "tok")

	if !strings.Contains(got, "jumpurl=-1") {
		t.Errorf("home link id missing: %q", got)
	}
	if !strings.Contains(got, "jumpurl=-2") {
		t.Errorf("deep link id missing: %q", got)
	}
	if strings.Contains(got, "jumpurl=-1/b") {
		t.Errorf("deep link corrupted by prefix replacement: %q", got)
	}
	if strings.Contains(got, "example.org/a") {
		t.Errorf("untracked url left behind: %q", got)
	}
}

func TestRewriteHTMLLinksPrefixURLs(t *testing.T) {
	c := &domain.Campaign{
		ID:           6,
		RedirectMode: domain.RedirectShort,
		RedirectBase: "https://track.example.org",
		HTMLBody:     `<a href="https://example.org/a/b">deep</a> <a href="https://example.org/a">home</a>`,
		HTMLLinks: []domain.CampaignLink{
			{ID: 1, URL: "https://example.org/a"},
			{ID: 2, URL: "https://example.org/a/b"},
		},
	}
	got := rewriteHTMLLinks(c, c.HTMLBody, domain.SourceContacts, 1, "tok")

	want := `<a href="https://track.example.org/j/6/2/tok">deep</a> <a href="https://track.example.org/j/6/1/tok">home</a>`
	if got != want {
		t.Errorf("got %q\nwant %q", got, want)
	}
}

func TestNewCorrelationTokenUnique(t *testing.T) {
	a := NewCorrelationToken(1, domain.SourceContacts, 2)
	b := NewCorrelationToken(1, domain.SourceContacts, 2)
	if len(a) != 32 {
		t.Fatalf("expected 32 hex chars, got %q", a)
	}
	if a == b {
		t.Error("tokens for repeated calls must differ")
	}
}
