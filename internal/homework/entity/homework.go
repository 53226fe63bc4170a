package entity

// Homework status values.
const (
	StatusPending   = 0
	StatusConfirmed = 1
)

// Homework is a row in the `homework` table. Dates are YYYY-MM-DD.
// ID is a snowflake and is sent as a JSON string.
type Homework struct {
	ID         int64  `db:"id" json:"id,string"`
	Subject    string `db:"subject" json:"subject"`
	Name       string `db:"name" json:"name"`
	CreateDate string `db:"create_date" json:"create_date"`
	DueDate    string `db:"due_date" json:"due_date"`
	UID        string `db:"uid" json:"uid"`
	Class      string `db:"class" json:"class"`
	Status     int    `db:"status" json:"status"`
}

// Item is one entry of a student's homework list. SubmissionStatus is only
// set for submitted work.
type Item struct {
	ID               int64  `db:"id" json:"id,string"`
	Subject          string `db:"subject" json:"subject"`
	Name             string `db:"name" json:"name"`
	DueDate          string `db:"due_date" json:"due_date"`
	SubmissionStatus *int   `db:"submission_status" json:"submission_status,omitempty"`
}
