package showroom

import (
	"net/url"
)

const (
	DefaultBaseUrl = "https://www.showroom-live.com"

	AdminPath        = "/event/admin_organizer"
	OrganizerTopPath = "/organizer"
	ApprovePath      = "/event/organizer_approve"

	UnknownRoomName  = "不明なルーム"
	UnknownEventName = "不明なイベント"
)

// ApprovalRecord is one pending event-participation request.
//
// CsrfToken is scoped to the page fetch that produced the record and must not be reused
// across fetches.
type ApprovalRecord struct {
	RoomId    string `json:"room_id"`
	EventId   string `json:"event_id"`
	CsrfToken string `json:"-"`
	RoomName  string `json:"room_name"`
	EventName string `json:"event_name"`
}

// ScanResult is what a single scan of the admin page produced.
type ScanResult struct {
	Token   string
	Records []ApprovalRecord
	// Forms is the number of approval forms on the page before filtering.
	Forms   int
	Skipped []*ExtractionError
}

type OutcomeStatus int

const (
	// OUTCOME_APPROVED means the final url was a known safe destination.
	OUTCOME_APPROVED OutcomeStatus = iota
	// OUTCOME_AMBIGUOUS means the request succeeded but ended somewhere unrecognized.
	OUTCOME_AMBIGUOUS
	// OUTCOME_LOGIN_REQUIRED means the request ended on the login page, the session is dead.
	OUTCOME_LOGIN_REQUIRED
	// OUTCOME_FAILED means the request itself failed.
	OUTCOME_FAILED
)

func (s OutcomeStatus) String() string {
	switch s {
	case OUTCOME_APPROVED:
		return "approved"
	case OUTCOME_AMBIGUOUS:
		return "ambiguous"
	case OUTCOME_LOGIN_REQUIRED:
		return "login_required"
	case OUTCOME_FAILED:
		return "failed"
	}
	return "unknown"
}

func (s OutcomeStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ApprovalOutcome is the result of one submission attempt.
type ApprovalOutcome struct {
	Success  bool          `json:"success"`
	Status   OutcomeStatus `json:"status"`
	RoomId   string        `json:"room_id"`
	EventId  string        `json:"event_id"`
	FinalUrl string        `json:"final_url,omitempty"`
	Message  string        `json:"message,omitempty"`
	Err      error         `json:"-"`
}

// Page is a fetched page after following redirects.
type Page struct {
	Html   string
	Url    *url.URL
	Status int
}

// SubmitResult is where a form post ended up after following redirects.
type SubmitResult struct {
	Url    *url.URL
	Status int
}
