// Package ref identifies where a table lives: the persistent store, a
// session's temporary workspace, or an external file.
package ref

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/razeghi71/dqflow/errs"
)

// SessionID names one engine workspace. It is opaque to callers.
type SessionID string

// Kind tags the variant of a TableRef.
type Kind string

const (
	KindPersistent Kind = "persistent"
	KindTemporary  Kind = "temporary"
	KindFile       Kind = "file"
)

// TempPrefix is reserved for engine-generated temporary table names.
const TempPrefix = "temp_"

// MaxNameLen bounds table names.
const MaxNameLen = 63

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// TableRef is a non-owning locator for a table. Exactly the fields of its
// Kind are set: Name for persistent, Name and SessionID for temporary, Path
// for file. Two refs are equal when the structs are equal.
type TableRef struct {
	Kind      Kind      `json:"kind"`
	Name      string    `json:"name,omitempty"`
	SessionID SessionID `json:"sessionId,omitempty"`
	Path      string    `json:"path,omitempty"`
}

// Persistent returns a reference to a durable table.
func Persistent(name string) (TableRef, error) {
	r := TableRef{Kind: KindPersistent, Name: name}
	return r, r.Validate()
}

// Temporary returns a reference to a table owned by session id.
func Temporary(name string, id SessionID) (TableRef, error) {
	r := TableRef{Kind: KindTemporary, Name: name, SessionID: id}
	return r, r.Validate()
}

// File returns a reference to a read-only external source.
func File(path string) (TableRef, error) {
	r := TableRef{Kind: KindFile, Path: path}
	return r, r.Validate()
}

// MustPersistent is Persistent for names known to be valid.
func MustPersistent(name string) TableRef {
	r, err := Persistent(name)
	if err != nil {
		panic(err)
	}
	return r
}

// Validate checks the invariants of the ref's kind.
func (r TableRef) Validate() error {
	var v errs.Violations
	switch r.Kind {
	case KindPersistent:
		if err := CheckName(r.Name); err != nil {
			v.Add("name", "%s", err)
		} else if IsTempName(r.Name) {
			v.Add("name", "prefix %q is reserved for temporary tables", TempPrefix)
		}
		if r.SessionID != "" {
			v.Add("sessionId", "not allowed on a persistent ref")
		}
		if r.Path != "" {
			v.Add("path", "not allowed on a persistent ref")
		}
	case KindTemporary:
		if err := CheckName(r.Name); err != nil {
			v.Add("name", "%s", err)
		} else if !IsTempName(r.Name) {
			v.Add("name", "temporary names start with %q", TempPrefix)
		}
		if r.SessionID == "" {
			v.Add("sessionId", "required")
		}
		if r.Path != "" {
			v.Add("path", "not allowed on a temporary ref")
		}
	case KindFile:
		if strings.TrimSpace(r.Path) == "" {
			v.Add("path", "required")
		}
		if r.Name != "" {
			v.Add("name", "not allowed on a file ref")
		}
		if r.SessionID != "" {
			v.Add("sessionId", "not allowed on a file ref")
		}
	case "":
		v.Add("kind", "required")
	default:
		v.Add("kind", "unknown kind %q", r.Kind)
	}
	return v.Err("invalid table ref")
}

func (r TableRef) String() string {
	switch r.Kind {
	case KindTemporary:
		return fmt.Sprintf("temporary:%s@%s", r.Name, r.SessionID)
	case KindFile:
		return "file:" + r.Path
	default:
		return string(r.Kind) + ":" + r.Name
	}
}

// CheckName validates a table name against the engine naming rules.
func CheckName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("must not be empty")
	case len(name) > MaxNameLen:
		return fmt.Errorf("longer than %d bytes", MaxNameLen)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("must not contain path separators")
	case !namePattern.MatchString(name):
		return fmt.Errorf("must match %s", namePattern)
	}
	return nil
}

// IsTempName reports whether name carries the reserved temporary prefix.
func IsTempName(name string) bool {
	return strings.HasPrefix(name, TempPrefix)
}

// ValidateDestination checks an output name hint. File-like names and
// names using the reserved prefix are rejected.
func ValidateDestination(name string) error {
	if err := CheckName(name); err != nil {
		return err
	}
	if IsTempName(name) {
		return fmt.Errorf("prefix %q is reserved for temporary tables", TempPrefix)
	}
	return nil
}
