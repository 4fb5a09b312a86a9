package usecase

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"mailrun/internal/core/domain"
	"mailrun/internal/core/port"
)

// Aggregator computes reporting summaries from the dispatch log.
type Aggregator struct {
	campaigns port.CampaignRepository
	log       port.DispatchLogRepository
	// labels is optional; it supplies display labels for tracked links.
	labels port.LinkLabelResolver
	logger *slog.Logger
}

func NewAggregator(campaigns port.CampaignRepository, log port.DispatchLogRepository, labels port.LinkLabelResolver, logger *slog.Logger) *Aggregator {
	return &Aggregator{campaigns: campaigns, log: log, labels: labels, logger: logger}
}

// ShowWithPercent renders a count together with its share of total, two
// decimals. A zero denominator renders the bare count with no suffix.
func ShowWithPercent(pieces, total int64) string {
	if total == 0 {
		return strconv.FormatInt(pieces, 10)
	}
	return fmt.Sprintf("%d / %.2f%%", pieces, float64(pieces)/float64(total)*100)
}

// GetPerformanceData builds the send/response summary. Send rows use the
// delivered total as denominator; the bounce row does too, so an operator can
// read bounce share of the whole send at a glance.
func (a *Aggregator) GetPerformanceData(ctx context.Context, campaignID int64) (*port.PerformanceData, error) {
	if err := a.ensureCampaign(ctx, campaignID); err != nil {
		return nil, err
	}
	sends, err := a.log.SendCounts(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	responses, err := a.log.ResponseCounts(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	htmlSent := sends[domain.FormatHTML] + sends[domain.FormatBoth]
	plainSent := sends[domain.FormatPlain] + sends[domain.FormatBoth]
	totalSent := sends[domain.FormatHTML] + sends[domain.FormatPlain] + sends[domain.FormatBoth]
	totalResponses := responses[domain.ResponseHTMLClick] + responses[domain.ResponsePlainClick] + responses[domain.ResponsePing]
	bounces := responses[domain.ResponseBounce]

	rows := []port.StatRow{
		statRow("Sent as HTML", htmlSent, totalSent),
		statRow("Sent as plain text", plainSent, totalSent),
		statRow("Failed or empty", sends[domain.FormatNone], totalSent),
		statRow("Total responses", totalResponses, totalSent),
		statRow("Unique HTML responses", responses[domain.ResponseHTMLClick], totalSent),
		statRow("Unique plain-text responses", responses[domain.ResponsePlainClick], totalSent),
		statRow("Unique pings", responses[domain.ResponsePing], totalSent),
		statRow("Returned", bounces, totalSent),
	}
	return &port.PerformanceData{CampaignID: campaignID, TotalSent: totalSent, Rows: rows}, nil
}

// GetReturnedData breaks the bounce total down by reason code; percentages
// are shares of the bounce total, not of the send total.
func (a *Aggregator) GetReturnedData(ctx context.Context, campaignID int64) (*port.ReturnedData, error) {
	if err := a.ensureCampaign(ctx, campaignID); err != nil {
		return nil, err
	}
	reasons, err := a.log.BounceReasons(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	var total int64
	for _, n := range reasons {
		total += n
	}
	codes := make([]int, 0, len(reasons))
	for code := range reasons {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	rows := make([]port.StatRow, 0, len(codes))
	for _, code := range codes {
		rows = append(rows, statRow(bounceReasonLabel(code), reasons[code], total))
	}
	return &port.ReturnedData{CampaignID: campaignID, TotalBounces: total, Rows: rows}, nil
}

// GetResponsesData builds the link-popularity table. HTML and plain clicks
// against the same destination URL are folded into one row: the table maps
// md5(absoluteURL) to the HTML link id and folds every plain entry whose URL
// hash matches; unmatched plain links stay as standalone rows.
func (a *Aggregator) GetResponsesData(ctx context.Context, campaignID int64) (*port.ResponsesData, error) {
	camp, err := a.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if camp == nil {
		return nil, port.ErrCampaignNotFound
	}
	clicks, err := a.log.ClickCounts(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	htmlURL := make(map[int]domain.CampaignLink, len(camp.HTMLLinks))
	urlHashToHTMLID := make(map[string]int, len(camp.HTMLLinks))
	for _, link := range camp.HTMLLinks {
		htmlURL[link.ID] = link
		urlHashToHTMLID[urlHash(link.URL)] = link.ID
	}
	plainURLs := ExtractPlainLinks(camp.PlainBody)
	plainURL := func(id int) string {
		idx := -id - 1
		if idx < 0 || idx >= len(plainURLs) {
			return ""
		}
		return plainURLs[idx]
	}

	rows := map[int]*port.LinkStat{}
	row := func(id int, url, label string) *port.LinkStat {
		if r, ok := rows[id]; ok {
			return r
		}
		r := &port.LinkStat{LinkID: id, URL: url, Label: label}
		rows[id] = r
		return r
	}

	for _, cc := range clicks {
		if cc.LinkID >= 0 {
			link := htmlURL[cc.LinkID]
			r := row(cc.LinkID, link.URL, a.labelFor(camp, link))
			if cc.Kind == domain.ResponsePlainClick {
				r.PlainCount += cc.Count
			} else {
				r.HTMLCount += cc.Count
			}
			continue
		}
		url := plainURL(cc.LinkID)
		if htmlID, ok := urlHashToHTMLID[urlHash(url)]; ok && url != "" {
			link := htmlURL[htmlID]
			row(htmlID, link.URL, a.labelFor(camp, link)).PlainCount += cc.Count
			continue
		}
		r := row(cc.LinkID, url, a.labelFor(camp, domain.CampaignLink{ID: cc.LinkID, URL: url}))
		r.PlainCount += cc.Count
	}

	links := make([]port.LinkStat, 0, len(rows))
	for _, r := range rows {
		r.Total = r.HTMLCount + r.PlainCount
		links = append(links, *r)
	}
	sort.Slice(links, func(i, j int) bool {
		if links[i].Total != links[j].Total {
			return links[i].Total > links[j].Total
		}
		return links[i].LinkID < links[j].LinkID
	})
	return &port.ResponsesData{CampaignID: campaignID, Links: links}, nil
}

func (a *Aggregator) labelFor(camp *domain.Campaign, link domain.CampaignLink) string {
	if a.labels != nil {
		if label := a.labels.ResolveLabel(camp, link); label != "" {
			return label
		}
	}
	return link.Label
}

func (a *Aggregator) ensureCampaign(ctx context.Context, campaignID int64) error {
	camp, err := a.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return err
	}
	if camp == nil {
		return port.ErrCampaignNotFound
	}
	return nil
}

func statRow(label string, count, total int64) port.StatRow {
	return port.StatRow{Label: label, Count: count, Display: ShowWithPercent(count, total)}
}

func urlHash(url string) string {
	sum := md5.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}

// bounceReasonLabel names the common SMTP-style bounce classifications; an
// unknown code renders as-is.
func bounceReasonLabel(code int) string {
	switch code {
	case 550:
		return "Recipient unknown"
	case 551:
		return "User not local"
	case 552:
		return "Mailbox full"
	case 553:
		return "Bad mailbox name"
	case 554:
		return "Transaction failed"
	case 0, -1:
		return "Unknown reason"
	default:
		return fmt.Sprintf("Reason code %d", code)
	}
}

var _ port.Reporter = (*Aggregator)(nil)
