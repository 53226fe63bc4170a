package entity

// EC is an extracurricular activity. Teacher is the teacher's Chinese name
// when known, otherwise empty.
type EC struct {
	ID          int64   `db:"id" json:"ec_id"`
	Name        string  `db:"name" json:"name"`
	Description string  `db:"description" json:"description"`
	Teacher     string  `db:"teacher" json:"teacher"`
	Cost        float64 `db:"cost" json:"cost"`
}
