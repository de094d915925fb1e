package bitbucket

import "time"

// Typed wire payloads for the Bitbucket Cloud 2.0 API. Raw payloads are
// parsed into these at the HTTP boundary and never leave this package.

// page is the envelope of every paginated list response.
type page struct {
	Values []jsonRaw `json:"values"`
	Next   string    `json:"next"`
}

// jsonRaw defers decoding of individual page values so one malformed item
// can be skipped without losing the rest of the page.
type jsonRaw []byte

func (r *jsonRaw) UnmarshalJSON(data []byte) error {
	*r = append((*r)[0:0], data...)
	return nil
}

// tokenPayload is the OAuth client-credentials token response.
type tokenPayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// userPayload identifies a Bitbucket account.
type userPayload struct {
	Nickname    string `json:"nickname"`
	DisplayName string `json:"display_name"`
	AccountID   string `json:"account_id"`
}

// branchRef is one side (source or destination) of a pull request.
type branchRef struct {
	Branch struct {
		Name string `json:"name"`
	} `json:"branch"`
	Commit struct {
		Hash string `json:"hash"`
	} `json:"commit"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

// participantPayload is an entry of a PR's participants list.
type participantPayload struct {
	Role     string      `json:"role"`
	User     userPayload `json:"user"`
	Approved bool        `json:"approved"`
	State    string      `json:"state"`
}

// prPayload is a pull request as returned by the list and detail endpoints.
// List responses omit participants and reviewers; the assembler triggers a
// supplemental detail fetch when both are absent.
type prPayload struct {
	ID           int                  `json:"id"`
	Title        string               `json:"title"`
	Description  string               `json:"description"`
	State        string               `json:"state"`
	CreatedOn    time.Time            `json:"created_on"`
	UpdatedOn    time.Time            `json:"updated_on"`
	ClosedOn     *time.Time           `json:"closed_on"`
	Author       userPayload          `json:"author"`
	Source       branchRef            `json:"source"`
	Destination  branchRef            `json:"destination"`
	TaskCount    int                  `json:"task_count"`
	Participants []participantPayload `json:"participants"`
	Reviewers    []userPayload        `json:"reviewers"`
	MergeCommit  *struct {
		Hash string `json:"hash"`
	} `json:"merge_commit"`
}

// commentPayload is a PR comment.
type commentPayload struct {
	ID      int `json:"id"`
	Content struct {
		Raw string `json:"raw"`
	} `json:"content"`
	User      userPayload `json:"user"`
	CreatedOn time.Time   `json:"created_on"`
	UpdatedOn *time.Time  `json:"updated_on"`
	Deleted   bool        `json:"deleted"`
	Pending   bool        `json:"pending"`
	Parent    *struct {
		ID int `json:"id"`
	} `json:"parent"`
	Inline *struct {
		Path string `json:"path"`
		From int    `json:"from"`
		To   int    `json:"to"`
	} `json:"inline"`
}

// taskPayload is a PR task.
type taskPayload struct {
	ID      int    `json:"id"`
	State   string `json:"state"`
	Content struct {
		Raw string `json:"raw"`
	} `json:"content"`
	Creator   userPayload `json:"creator"`
	CreatedOn time.Time   `json:"created_on"`
	UpdatedOn *time.Time  `json:"updated_on"`
	Comment   *struct {
		ID int `json:"id"`
	} `json:"comment"`
}

// attachmentPayload is a file attached to a PR comment.
type attachmentPayload struct {
	Name  string `json:"name"`
	Links struct {
		Self struct {
			Href string `json:"href"`
		} `json:"self"`
	} `json:"links"`
}

// commitPayload is an entry of a PR's commit list.
type commitPayload struct {
	Hash string `json:"hash"`
}
