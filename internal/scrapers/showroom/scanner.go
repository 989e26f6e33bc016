// scanner.go contains everything that depends on the markup of the admin page.

package showroom

import (
	"context"
	"net/url"
	"regexp"
	"showroom-approver/internal/components/assert"
	"showroom-approver/internal/components/telemetry"
	"showroom-approver/pkg/htmlutil"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	report_scanner_scan         = "scanner.scan"
	report_scanner_extract_form = "scanner.extract-form"
)

var (
	roomProfileHref = regexp.MustCompile(`/room/profile\?(?:.*&)?room_id=`)
	eventHref       = regexp.MustCompile(`/event/`)
	digits          = regexp.MustCompile(`^\d+$`)
)

// loginMarkers are the texts of the login page ("login", "sign up", "sign in").
var loginMarkers = []string{"ログイン", "会員登録", "サインイン"}

// Scanner extracts pending approvals from the admin page.
type Scanner struct {
	tel telemetry.API
}

func NewScanner(tel telemetry.API) Scanner {
	assert.NotNil(tel)
	return Scanner{tel: tel}
}

// NormalizeId trims whitespace and leading zeros off a numeric id.
func NormalizeId(id string) string {
	id = strings.TrimSpace(id)
	trimmed := strings.TrimLeft(id, "0")
	if trimmed == "" && id != "" {
		return "0"
	}
	return trimmed
}

func isApprovalAction(action string) bool {
	parsed, err := url.Parse(strings.TrimSpace(action))
	if err != nil {
		return false
	}
	path := parsed.Path
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	return path == ApprovePath
}

func approvalForms(doc *goquery.Document) *goquery.Selection {
	return doc.Find("form[action]").FilterFunction(func(_ int, form *goquery.Selection) bool {
		return isApprovalAction(form.AttrOr("action", ""))
	})
}

func firstToken(sel *goquery.Selection) string {
	token := ""
	sel.Find("input[name=csrf_token]").EachWithBreak(func(_ int, input *goquery.Selection) bool {
		token = strings.TrimSpace(input.AttrOr("value", ""))
		return token == ""
	})
	return token
}

// pageToken prefers the token inside an approval form and falls back to the first one
// anywhere in the document.
func pageToken(doc *goquery.Document, forms *goquery.Selection) string {
	token := firstToken(forms)
	if token != "" {
		return token
	}
	return firstToken(doc.Selection)
}

func inputValue(form *goquery.Selection, name string) string {
	return strings.TrimSpace(form.Find("input[name=" + name + "]").First().AttrOr("value", ""))
}

func firstAnchorName(scope *goquery.Selection, match func(*url.URL) bool) string {
	for _, anchor := range htmlutil.GetAnchors(nil, scope.Find("a[href]")) {
		if match(anchor.Url) && anchor.Name != "" {
			return anchor.Name
		}
	}
	return ""
}

func isRoomLink(u *url.URL) bool {
	return roomProfileHref.MatchString(u.String())
}

func isEventLink(u *url.URL) bool {
	if !eventHref.MatchString(u.Path) {
		return false
	}
	return u.Path != ApprovePath && u.Path != AdminPath
}

// Scan parses the admin page into pending approvals.
//
// A page without any csrf token returns ErrMissingCsrfToken and no records, a page with a
// token and no approval forms is a successful empty result. When roomFilter is non-empty,
// only forms for that room are returned.
func (s Scanner) Scan(ctx context.Context, html string, roomFilter string) (ScanResult, error) {
	_, span := tracer.Start(ctx, "scanner:Scan")
	defer span.End()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse admin page")
		s.tel.ReportBroken(report_scanner_scan, err)
		return ScanResult{}, err
	}

	forms := approvalForms(doc)
	token := pageToken(doc, forms)
	if token == "" {
		span.SetStatus(codes.Error, ErrMissingCsrfToken.Error())
		return ScanResult{}, ErrMissingCsrfToken
	}

	filter := ""
	if roomFilter != "" {
		filter = NormalizeId(roomFilter)
	}

	result := ScanResult{
		Token:   token,
		Records: []ApprovalRecord{},
		Forms:   forms.Length(),
	}
	forms.Each(func(i int, form *goquery.Selection) {
		roomId := inputValue(form, "room_id")
		eventId := inputValue(form, "event_id")

		var extractErr *ExtractionError
		switch {
		case roomId == "":
			extractErr = &ExtractionError{Index: i, Field: "room_id"}
		case !digits.MatchString(roomId):
			extractErr = &ExtractionError{Index: i, Field: "room_id", Value: roomId}
		case eventId == "":
			extractErr = &ExtractionError{Index: i, Field: "event_id"}
		case !digits.MatchString(eventId):
			extractErr = &ExtractionError{Index: i, Field: "event_id", Value: eventId}
		}
		if extractErr != nil {
			s.tel.ReportWarning(report_scanner_extract_form, extractErr)
			result.Skipped = append(result.Skipped, extractErr)
			return
		}

		if filter != "" && NormalizeId(roomId) != filter {
			return
		}

		row := form.Closest("tr")
		if row.Length() == 0 {
			row = form
		}
		roomName := firstAnchorName(row, isRoomLink)
		if roomName == "" {
			roomName = UnknownRoomName
		}
		eventName := firstAnchorName(row, isEventLink)
		if eventName == "" {
			eventName = UnknownEventName
		}

		record := ApprovalRecord{
			RoomId:    roomId,
			EventId:   eventId,
			CsrfToken: token,
			RoomName:  roomName,
			EventName: eventName,
		}
		result.Records = append(result.Records, record)
		span.AddEvent("record", trace.WithAttributes(
			attribute.String("room_id", roomId),
			attribute.String("event_id", eventId),
		))
	})

	s.tel.ReportCount(report_scanner_scan, int64(len(result.Records)))
	return result, nil
}

// looksLikeLoginPage reports whether a page without a token is the login wall.
func looksLikeLoginPage(page Page) bool {
	if page.Url != nil && strings.Contains(strings.ToLower(page.Url.Path), "login") {
		return true
	}
	for _, marker := range loginMarkers {
		if strings.Contains(page.Html, marker) {
			return true
		}
	}
	return false
}
