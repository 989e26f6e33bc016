package approver

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"showroom-approver/internal/components/telemetry"
	"showroom-approver/internal/scrapers/showroom"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, platform *fakePlatform, delaySeconds int) *Service {
	t.Helper()
	svc, err := NewService(
		Config{AuthCookie: "sr_id=abc", SubmitDelaySeconds: &delaySeconds},
		telemetry.NewRecorder(),
		platform.clock,
		WithPlatform(platform),
	)
	require.NoError(t, err)
	return svc
}

func TestNewServiceRequiresCredential(t *testing.T) {
	for _, cookie := range []string{"", "   "} {
		_, err := NewService(Config{AuthCookie: cookie}, telemetry.NewRecorder(), newFakeClock())
		require.ErrorIs(t, err, ErrMissingCredential)
	}

	_, err := NewService(Config{AuthCookie: "garbage"}, telemetry.NewRecorder(), newFakeClock())
	require.ErrorIs(t, err, showroom.ErrEmptyOrMalformedCookies)
}

func TestServiceScanOnceValidatesRoom(t *testing.T) {
	platform := &fakePlatform{clock: newFakeClock(), responses: []scanResponse{pending("1")}}
	svc := newTestService(t, platform, 0)

	_, err := svc.ScanOnce(context.Background(), "12a")
	var invalid *InvalidRoomIdError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, 0, platform.scanCount())

	result, err := svc.ScanOnce(context.Background(), "111")
	require.NoError(t, err)
	require.Len(t, result.Records, 1)

	result, err = svc.ScanOnce(context.Background(), "222")
	require.NoError(t, err)
	require.Empty(t, result.Records)
}

func TestServiceApproveRoom(t *testing.T) {
	platform := &fakePlatform{
		clock:     newFakeClock(),
		responses: []scanResponse{pending("1", "2", "3")},
		statuses:  map[string]showroom.OutcomeStatus{},
	}
	svc := newTestService(t, platform, 0)

	outcomes, err := svc.ApproveRoom(context.Background(), "111", "2")
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	require.True(t, outcomes[0].Success)
	require.Equal(t, []string{"2"}, platform.approvedEvents())

	outcomes, err = svc.ApproveRoom(context.Background(), "111", "")
	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	require.Equal(t, []string{"2", "1", "2", "3"}, platform.approvedEvents())

	outcomes, err = svc.ApproveRoom(context.Background(), "999", "")
	require.NoError(t, err)
	require.Empty(t, outcomes)
}

func TestServiceApproveRoomEventFilter(t *testing.T) {
	platform := &fakePlatform{
		clock:     newFakeClock(),
		responses: []scanResponse{pending("09001", "2")},
		statuses:  map[string]showroom.OutcomeStatus{},
	}
	svc := newTestService(t, platform, 0)

	_, err := svc.ApproveRoom(context.Background(), "111", "90a1")
	var invalid *InvalidEventIdError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, 0, platform.scanCount())

	outcomes, err := svc.ApproveRoom(context.Background(), "111", " 9001 ")
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	require.Equal(t, []string{"09001"}, platform.approvedEvents())
}

func TestServiceApproveRoomStopsOnLogin(t *testing.T) {
	platform := &fakePlatform{
		clock:     newFakeClock(),
		responses: []scanResponse{pending("1", "2", "3")},
		statuses:  map[string]showroom.OutcomeStatus{"1": showroom.OUTCOME_LOGIN_REQUIRED},
	}
	svc := newTestService(t, platform, 0)

	outcomes, err := svc.ApproveRoom(context.Background(), "111", "")
	require.ErrorIs(t, err, showroom.ErrLoginRequired)
	require.Len(t, outcomes, 1)
	require.Equal(t, []string{"1"}, platform.approvedEvents())
}

func TestServiceApproveRoomWaitsBetweenSubmissions(t *testing.T) {
	platform := &fakePlatform{
		clock:     newFakeClock(),
		responses: []scanResponse{pending("1", "2")},
		statuses:  map[string]showroom.OutcomeStatus{},
	}
	svc := newTestService(t, platform, 3)

	type result struct {
		outcomes []showroom.ApprovalOutcome
		err      error
	}
	done := make(chan result, 1)
	go func() {
		outcomes, err := svc.ApproveRoom(context.Background(), "111", "")
		done <- result{outcomes: outcomes, err: err}
	}()

	require.Equal(t, 3*time.Second, recv(t, platform.clock.Waited()))
	require.Equal(t, []string{"1"}, platform.approvedEvents())
	platform.clock.Advance(3 * time.Second)

	res := recv(t, done)
	require.NoError(t, res.err)
	require.Len(t, res.outcomes, 2)
}

func TestServicePolling(t *testing.T) {
	platform := &fakePlatform{clock: newFakeClock(), responses: []scanResponse{pending()}}
	svc := newTestService(t, platform, 0)

	require.False(t, svc.IsRunning())
	require.NoError(t, svc.StartPolling(context.Background(), 0))
	require.True(t, svc.IsRunning())

	// the configured default interval is used
	require.Equal(t, 30*time.Second, recv(t, platform.clock.Waited()))
	require.NotNil(t, svc.PollingStatus().LastReport)

	require.True(t, svc.StopPolling())
	require.False(t, svc.IsRunning())
	require.False(t, svc.PollingStatus().Running)
}

const integrationAdminPage = `<html><body>
<form action="/logout"><input type="hidden" name="csrf_token" value="fresh-token"></form>
<table>
	<tr>
		<td><a href="/room/profile?room_id=%[1]s">Room %[1]s</a></td>
		<td><a href="/event/spring_fest">Spring Fest</a></td>
		<td><form method="post" action="/event/organizer_approve">
			<input type="hidden" name="room_id" value="%[1]s">
			<input type="hidden" name="event_id" value="9001">
		</form></td>
	</tr>
</table>
</body></html>`

func TestServiceAgainstPlatform(t *testing.T) {
	var mutex sync.Mutex
	approvals := []string{}

	mux := http.NewServeMux()
	mux.HandleFunc("/event/admin_organizer", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, integrationAdminPage, "111")
	})
	mux.HandleFunc("/event/organizer_approve", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		mutex.Lock()
		approvals = append(approvals, r.PostForm.Get("csrf_token")+"/"+r.PostForm.Get("room_id")+"/"+r.PostForm.Get("event_id"))
		mutex.Unlock()
		http.Redirect(w, r, "/event/admin_organizer", http.StatusFound)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	bypass := false
	svc, err := NewService(Config{
		AuthCookie:       "sr_id=abc",
		BaseUrl:          server.URL,
		CloudflareBypass: &bypass,
	}, telemetry.NewRecorder(), newFakeClock())
	require.NoError(t, err)

	result, err := svc.ScanOnce(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, "fresh-token", result.Token)
	require.Len(t, result.Records, 1)
	require.Equal(t, "Room 111", result.Records[0].RoomName)
	require.Equal(t, "Spring Fest", result.Records[0].EventName)

	outcomes, err := svc.ApproveRoom(context.Background(), "0111", "")
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	require.Equal(t, showroom.OUTCOME_APPROVED, outcomes[0].Status)

	mutex.Lock()
	defer mutex.Unlock()
	require.Equal(t, []string{"fresh-token/111/9001"}, approvals)
}

type fakeNotifier struct {
	causes chan error
	at     chan time.Time
}

func (n fakeNotifier) SessionDied(ctx context.Context, at time.Time, cause error) error {
	n.at <- at
	n.causes <- cause
	return nil
}

func TestServiceNotifiesWhenSessionDies(t *testing.T) {
	invalid := &showroom.SessionInvalidError{Reason: showroom.REASON_LOGIN_WALL}
	platform := &fakePlatform{
		clock:     newFakeClock(),
		responses: []scanResponse{pending(), {err: invalid}},
	}
	notifier := fakeNotifier{causes: make(chan error, 1), at: make(chan time.Time, 1)}
	stopped := make(chan error, 1)

	svc, err := NewService(
		Config{AuthCookie: "sr_id=abc"},
		telemetry.NewRecorder(),
		platform.clock,
		WithPlatform(platform),
		WithNotifier(notifier),
		WithStopHandler(func(err error) {
			stopped <- err
		}),
	)
	require.NoError(t, err)

	require.NoError(t, svc.StartPolling(context.Background(), 10*time.Second))
	require.Equal(t, 10*time.Second, recv(t, platform.clock.Waited()))
	platform.clock.Advance(10 * time.Second)

	require.ErrorIs(t, recv(t, notifier.causes), showroom.ErrSessionInvalid)
	require.Equal(t, platform.clock.Now(), recv(t, notifier.at))
	require.ErrorIs(t, recv(t, stopped), showroom.ErrSessionInvalid)
}

func TestServiceDoesNotNotifyOnManualStop(t *testing.T) {
	platform := &fakePlatform{clock: newFakeClock(), responses: []scanResponse{pending()}}
	notifier := fakeNotifier{causes: make(chan error, 1), at: make(chan time.Time, 1)}

	svc, err := NewService(
		Config{AuthCookie: "sr_id=abc"},
		telemetry.NewRecorder(),
		platform.clock,
		WithPlatform(platform),
		WithNotifier(notifier),
	)
	require.NoError(t, err)

	require.NoError(t, svc.StartPolling(context.Background(), 0))
	recv(t, platform.clock.Waited())
	require.True(t, svc.StopPolling())

	select {
	case <-notifier.causes:
		t.Fatal("a manual stop is not a dead session")
	default:
	}
}
