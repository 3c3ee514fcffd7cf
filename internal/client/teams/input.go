package teams

import (
	"strings"

	"github.com/splax/teamroster/internal/domain"
)

// Input is the team form shared by create and edit.
type Input struct {
	Name      string
	Category  domain.Category
	Members   []string
	Questions []string
}

// normalize trims every field, collapses duplicate member ids keeping first-seen order,
// and reports all problems at once.
func (in Input) normalize() (Input, error) {
	out := Input{
		Name:     strings.TrimSpace(in.Name),
		Category: domain.Category(strings.TrimSpace(string(in.Category))),
	}
	var problems []string
	if out.Name == "" {
		problems = append(problems, "name is required")
	}
	if !out.Category.Valid() {
		problems = append(problems, "category must be one of Marketing, Sales, Development, Design")
	}

	seen := make(map[string]struct{}, len(in.Members))
	for _, id := range in.Members {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out.Members = append(out.Members, id)
	}
	if len(out.Members) == 0 {
		problems = append(problems, "select at least one member")
	}

	out.Questions = make([]string, 0, len(in.Questions))
	blank := false
	for _, q := range in.Questions {
		q = strings.TrimSpace(q)
		if q == "" {
			blank = true
		}
		out.Questions = append(out.Questions, q)
	}
	if blank {
		problems = append(problems, "questions cannot be blank")
	}

	if len(problems) > 0 {
		return Input{}, &ValidationError{Problems: problems}
	}
	return out, nil
}

func trimmed(s string) string {
	return strings.TrimSpace(s)
}
