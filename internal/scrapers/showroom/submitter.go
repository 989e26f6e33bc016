package showroom

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// destination classifies where an approval post ended up. The platform answers an expired
// session with a 200 redirect to the login page, so the status code alone means nothing.
// Pages below the admin page, the organizer top or the approval endpoint count as safe.
func (c *Client) destination(final *url.URL) OutcomeStatus {
	if final == nil {
		return OUTCOME_AMBIGUOUS
	}
	path := final.Path
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	if strings.Contains(strings.ToLower(path), "login") {
		return OUTCOME_LOGIN_REQUIRED
	}
	if !strings.EqualFold(final.Hostname(), c.BaseUrl.Hostname()) {
		return OUTCOME_AMBIGUOUS
	}
	for _, safe := range []string{AdminPath, OrganizerTopPath, ApprovePath} {
		if path == safe || strings.HasPrefix(path, safe+"/") {
			return OUTCOME_APPROVED
		}
	}
	return OUTCOME_AMBIGUOUS
}

// Approve posts a single approval. It never retries and never returns an error, every
// failure is described by the outcome. The record's token must come from the same scan
// that produced the record.
func (c *Client) Approve(ctx context.Context, record ApprovalRecord) ApprovalOutcome {
	ctx, span := tracer.Start(ctx, "client:Approve")
	defer span.End()
	span.SetAttributes(
		attribute.String("room_id", record.RoomId),
		attribute.String("event_id", record.EventId),
	)

	outcome := ApprovalOutcome{
		RoomId:  record.RoomId,
		EventId: record.EventId,
	}

	res, err := c.Submit(ctx, ApprovePath, map[string]string{
		"csrf_token": record.CsrfToken,
		"room_id":    record.RoomId,
		"event_id":   record.EventId,
	})
	if err != nil {
		outcome.Status = OUTCOME_FAILED
		outcome.Err = err
		outcome.Message = err.Error()
		return outcome
	}

	outcome.FinalUrl = res.Url.String()
	outcome.Status = c.destination(res.Url)
	outcome.Success = outcome.Status == OUTCOME_APPROVED

	switch outcome.Status {
	case OUTCOME_APPROVED:
		c.tel.ReportDebug(report_client_approve, record.RoomId, record.EventId)
	case OUTCOME_LOGIN_REQUIRED:
		outcome.Err = ErrLoginRequired
		outcome.Message = fmt.Sprintf("redirected to the login page: %s", outcome.FinalUrl)
		c.tel.ReportBroken(report_client_approve, outcome.Message, record.RoomId, record.EventId)
	case OUTCOME_AMBIGUOUS:
		outcome.Message = fmt.Sprintf("request succeeded but redirected to an unexpected page: %s", outcome.FinalUrl)
		c.tel.ReportWarning(report_client_approve, outcome.Message, record.RoomId, record.EventId)
	}
	if !outcome.Success {
		span.SetStatus(codes.Error, outcome.Status.String())
	}

	return outcome
}

// ScanPending fetches the admin page and scans it. A page without a token is reported as a
// *SessionInvalidError, a fetch failure as a *TransportError.
func (c *Client) ScanPending(ctx context.Context, roomFilter string) (ScanResult, error) {
	page, err := c.FetchAdminPage(ctx)
	if err != nil {
		return ScanResult{}, err
	}

	result, err := c.scanner.Scan(ctx, page.Html, roomFilter)
	if errors.Is(err, ErrMissingCsrfToken) {
		invalid := &SessionInvalidError{
			Reason: REASON_TOKEN_MISSING,
			Url:    page.Url.String(),
		}
		if looksLikeLoginPage(page) {
			invalid.Reason = REASON_LOGIN_WALL
		}
		c.tel.ReportBroken(report_client_scan_pending, invalid)
		return ScanResult{}, invalid
	}
	if err != nil {
		return ScanResult{}, err
	}
	return result, nil
}
