package showroom

import (
	"context"
	"fmt"
	"net/url"
	"showroom-approver/internal/components/telemetry"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	_ "embed"
)

//go:embed testdata/admin_pending.html
var adminPendingHtml string

//go:embed testdata/admin_empty.html
var adminEmptyHtml string

//go:embed testdata/admin_malformed.html
var adminMalformedHtml string

//go:embed testdata/login.html
var loginHtml string

//go:embed testdata/maintenance.html
var maintenanceHtml string

func TestScanPending(t *testing.T) {
	scanner := NewScanner(telemetry.NewRecorder())

	result, err := scanner.Scan(context.Background(), adminPendingHtml, "")
	require.NoError(t, err)
	require.Equal(t, "page-token", result.Token)
	require.Equal(t, 3, result.Forms)
	require.Empty(t, result.Skipped)

	expected := []ApprovalRecord{
		{
			RoomId:    "111",
			EventId:   "9001",
			CsrfToken: "page-token",
			RoomName:  "ルーム いち",
			EventName: "春のフェス",
		},
		{
			RoomId:    "222",
			EventId:   "9002",
			CsrfToken: "page-token",
			RoomName:  "Room Two",
			EventName: "Autumn Cup",
		},
		{
			RoomId:    "111",
			EventId:   "9003",
			CsrfToken: "page-token",
			RoomName:  UnknownRoomName,
			EventName: UnknownEventName,
		},
	}
	if diff := cmp.Diff(expected, result.Records); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestScanRoomFilter(t *testing.T) {
	scanner := NewScanner(telemetry.NewRecorder())

	table := []struct {
		filter   string
		expected []string
	}{
		{filter: "111", expected: []string{"9001", "9003"}},
		{filter: "0111", expected: []string{"9001", "9003"}},
		{filter: " 222 ", expected: []string{"9002"}},
		{filter: "999", expected: []string{}},
		{filter: "", expected: []string{"9001", "9002", "9003"}},
	}

	for _, row := range table {
		result, err := scanner.Scan(context.Background(), adminPendingHtml, row.filter)
		require.NoError(t, err)
		require.Equal(t, 3, result.Forms)

		events := []string{}
		for _, r := range result.Records {
			if row.filter != "" {
				require.Equal(t, NormalizeId(row.filter), r.RoomId)
			}
			events = append(events, r.EventId)
		}
		require.Equal(t, row.expected, events, row.filter)
	}
}

func TestScanEmpty(t *testing.T) {
	scanner := NewScanner(telemetry.NewRecorder())

	result, err := scanner.Scan(context.Background(), adminEmptyHtml, "")
	require.NoError(t, err)
	require.Equal(t, "header-token", result.Token)
	require.NotNil(t, result.Records)
	require.Empty(t, result.Records)
	require.Zero(t, result.Forms)
}

func TestScanMissingToken(t *testing.T) {
	scanner := NewScanner(telemetry.NewRecorder())

	for _, html := range []string{loginHtml, maintenanceHtml, ""} {
		result, err := scanner.Scan(context.Background(), html, "")
		require.ErrorIs(t, err, ErrMissingCsrfToken)
		require.Empty(t, result.Token)
		require.Empty(t, result.Records)
	}
}

func TestScanSkipsMalformedForms(t *testing.T) {
	rec := telemetry.NewRecorder()
	scanner := NewScanner(rec)

	result, err := scanner.Scan(context.Background(), adminMalformedHtml, "")
	require.NoError(t, err)
	require.Equal(t, "page-token", result.Token)
	require.Equal(t, 4, result.Forms)

	require.Equal(t, []*ExtractionError{
		{Index: 0, Field: "event_id"},
		{Index: 1, Field: "room_id", Value: "abc"},
	}, result.Skipped)
	require.Len(t, rec.Reports(telemetry.REPORT_WARNING, report_scanner_extract_form), 2)

	expected := []ApprovalRecord{
		{
			RoomId:    "444",
			EventId:   "9004",
			CsrfToken: "page-token",
			RoomName:  "Room Four",
			EventName: "Winter Live",
		},
		{
			RoomId:    "555",
			EventId:   "9006",
			CsrfToken: "page-token",
			RoomName:  UnknownRoomName,
			EventName: UnknownEventName,
		},
	}
	if diff := cmp.Diff(expected, result.Records); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestScanRecordCount(t *testing.T) {
	scanner := NewScanner(telemetry.NewRecorder())

	for _, n := range []int{0, 1, 5, 20} {
		var page strings.Builder
		page.WriteString(`<html><body><input type="hidden" name="csrf_token" value="tok"><table>`)
		for i := 0; i < n; i++ {
			fmt.Fprintf(&page, `<tr><td><form action="/event/organizer_approve">
				<input name="room_id" value="%d"><input name="event_id" value="%d">
			</form></td></tr>`, 100+i, 200+i)
		}
		page.WriteString(`</table></body></html>`)

		result, err := scanner.Scan(context.Background(), page.String(), "")
		require.NoError(t, err)
		require.Len(t, result.Records, n)
		for _, r := range result.Records {
			require.Equal(t, "tok", r.CsrfToken)
		}
	}
}

func TestNormalizeId(t *testing.T) {
	table := []struct {
		input    string
		expected string
	}{
		{input: "111", expected: "111"},
		{input: "00111", expected: "111"},
		{input: " 42\n", expected: "42"},
		{input: "000", expected: "0"},
		{input: "", expected: ""},
	}
	for _, row := range table {
		require.Equal(t, row.expected, NormalizeId(row.input))
	}
}

func TestLooksLikeLoginPage(t *testing.T) {
	loginUrl, err := url.Parse("https://www.showroom-live.com/user/login?next=/event/admin_organizer")
	require.NoError(t, err)
	adminUrl, err := url.Parse("https://www.showroom-live.com/event/admin_organizer")
	require.NoError(t, err)

	require.True(t, looksLikeLoginPage(Page{Html: loginHtml, Url: adminUrl}))
	require.True(t, looksLikeLoginPage(Page{Html: maintenanceHtml, Url: loginUrl}))
	require.False(t, looksLikeLoginPage(Page{Html: maintenanceHtml, Url: adminUrl}))
}
