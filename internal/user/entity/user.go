package entity

import "strconv"

// Identity is a row in the `users` table. PasswordHash is a PHC argon2id
// string and must never be serialised.
type Identity struct {
	UID          string `db:"uid"`
	PasswordHash string `db:"password_hash" json:"-"`
	Role         int    `db:"role"`
	ChiName      string `db:"chi_name"`
	EngName      string `db:"eng_name"`
	Email        string `db:"email"`
	Form         int    `db:"form"`
	Class        string `db:"class"`
	ClassNo      int    `db:"class_no"`
}

// Credential is the projection read on login.
type Credential struct {
	UID          string `db:"uid"`
	PasswordHash string `db:"password_hash"`
	Role         int    `db:"role"`
}

// Profile is the public projection of an identity.
type Profile struct {
	UID     string `db:"uid" json:"uid"`
	ChiName string `db:"chi_name" json:"chi_name"`
	EngName string `db:"eng_name" json:"eng_name"`
	Email   string `db:"email" json:"email"`
	Form    int    `db:"form" json:"form"`
	Class   string `db:"class" json:"class"`
	ClassNo int    `db:"class_no" json:"class_no"`
	Role    int    `db:"role" json:"role"`
}

// ClassName joins form and class, e.g. "5" + "A" = "5A".
func (p Profile) ClassName() string {
	return strconv.Itoa(p.Form) + p.Class
}

// DisplayName picks the Chinese name for zh-HK and the English name otherwise.
func (p Profile) DisplayName(lang string) string {
	if lang == "zh-HK" {
		return p.ChiName
	}
	return p.EngName
}
