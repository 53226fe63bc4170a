package user

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	userrepo "github.com/ovaphlow/pitchfork/service-ilearn-go/internal/user/repo"
)

// Roster is the YAML document read by cmd/seed:
//
//	users:
//	  - uid: s001
//	    password: changeme
//	    role: 0
//	    eng_name: Chan Tai Man
//	    form: 5
//	    class: A
type Roster struct {
	Users []RosterEntry `yaml:"users"`
}

type RosterEntry struct {
	UID      string `yaml:"uid"`
	Password string `yaml:"password"`
	Role     int    `yaml:"role"`
	ChiName  string `yaml:"chi_name"`
	EngName  string `yaml:"eng_name"`
	Email    string `yaml:"email"`
	Form     int    `yaml:"form"`
	Class    string `yaml:"class"`
	ClassNo  int    `yaml:"class_no"`
}

// ParseRoster decodes a roster, rejecting unknown keys.
func ParseRoster(r io.Reader) (*Roster, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var roster Roster
	if err := dec.Decode(&roster); err != nil {
		if errors.Is(err, io.EOF) {
			return &roster, nil
		}
		return nil, fmt.Errorf("parse roster: %w", err)
	}
	return &roster, nil
}

// ImportResult lists which uids were created and which already existed.
type ImportResult struct {
	Created    []string
	Duplicates []string
}

// ImportRoster registers every entry through Register. Duplicates are
// collected; any other failure stops the import.
func (s *Service) ImportRoster(ctx context.Context, roster *Roster) (ImportResult, error) {
	var res ImportResult
	for _, e := range roster.Users {
		err := s.Register(ctx, RegisterInput{
			UID:      e.UID,
			Password: e.Password,
			Role:     e.Role,
			ChiName:  e.ChiName,
			EngName:  e.EngName,
			Email:    e.Email,
			Form:     e.Form,
			Class:    e.Class,
			ClassNo:  e.ClassNo,
		})
		switch {
		case err == nil:
			res.Created = append(res.Created, e.UID)
		case errors.Is(err, userrepo.ErrDuplicate):
			res.Duplicates = append(res.Duplicates, e.UID)
		default:
			return res, fmt.Errorf("import %q: %w", e.UID, err)
		}
	}
	return res, nil
}
