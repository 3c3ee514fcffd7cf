package rules

import (
	"context"
	"errors"
	"fmt"

	"github.com/splax/teamroster/internal/docpath"
	"github.com/splax/teamroster/internal/domain"
)

var (
	// ErrUnauthenticated is returned when an anonymous actor touches the tree.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrForbidden is returned when the actor may not perform the operation at the path.
	ErrForbidden = errors.New("operation not permitted")
)

// Actor is the caller a rule is evaluated for.
type Actor struct {
	UserID string
	Role   domain.Role
	system bool
}

// SystemActor bypasses every rule. Only server-side workflows use it.
var SystemActor = Actor{UserID: "system", Role: domain.RoleAdmin, system: true}

// Authenticated reports whether the actor carries an identity.
func (a Actor) Authenticated() bool {
	return a.system || a.UserID != ""
}

// IsAdmin reports whether the actor has administrative rights.
func (a Actor) IsAdmin() bool {
	return a.system || a.Role == domain.RoleAdmin
}

// Reader is the read access rules need to compare against stored state.
type Reader interface {
	GetNode(ctx context.Context, path string) (any, error)
}

// Policy evaluates access to the document tree.
type Policy struct {
	reader Reader
}

// New constructs a Policy reading current state from reader.
func New(reader Reader) Policy {
	return Policy{reader: reader}
}

// Read allows any authenticated actor to read any path.
func (p Policy) Read(actor Actor, path string) error {
	if !actor.Authenticated() {
		return ErrUnauthenticated
	}
	return nil
}

// Write decides whether actor may store value at path. A nil value is a removal.
func (p Policy) Write(ctx context.Context, actor Actor, path string, value any) error {
	if !actor.Authenticated() {
		return ErrUnauthenticated
	}
	if actor.IsAdmin() {
		return nil
	}

	segments := docpath.Split(path)
	if len(segments) < 2 {
		return ErrForbidden
	}
	switch segments[0] {
	case "users":
		return p.writeProfile(ctx, actor, segments, value)
	case "teams":
		return p.writeTeam(ctx, actor, segments, value)
	default:
		return ErrForbidden
	}
}

func (p Policy) writeProfile(ctx context.Context, actor Actor, segments []string, value any) error {
	if segments[1] != actor.UserID {
		return ErrForbidden
	}
	switch {
	case len(segments) == 2:
		if value == nil {
			return ErrForbidden
		}
		fields, _ := value.(map[string]any)
		return p.sameRole(ctx, actor.UserID, fields["role"])
	case segments[2] == "role":
		return p.sameRole(ctx, actor.UserID, value)
	default:
		return nil
	}
}

func (p Policy) sameRole(ctx context.Context, userID string, next any) error {
	current, err := p.readString(ctx, docpath.Join(domain.UserPath(userID), "role"))
	if err != nil {
		return err
	}
	proposed, _ := next.(string)
	if proposed != current {
		return ErrForbidden
	}
	return nil
}

func (p Policy) writeTeam(ctx context.Context, actor Actor, segments []string, value any) error {
	touchesAuthor := len(segments) == 2 || (len(segments) == 3 && segments[2] == "author")
	if !touchesAuthor {
		return nil
	}

	teamPath := domain.TeamPath(segments[1])
	author, err := p.readString(ctx, docpath.Join(teamPath, "author"))
	if err != nil {
		return err
	}
	if author == "" || author == actor.UserID {
		return nil
	}

	var proposed any
	if len(segments) == 2 {
		if value == nil {
			return ErrForbidden
		}
		fields, _ := value.(map[string]any)
		proposed = fields["author"]
	} else {
		proposed = value
	}
	if s, _ := proposed.(string); s != author {
		return ErrForbidden
	}
	return nil
}

func (p Policy) readString(ctx context.Context, path string) (string, error) {
	node, err := p.reader.GetNode(ctx, path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	s, _ := node.(string)
	return s, nil
}
