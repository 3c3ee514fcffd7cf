package domain

import (
	"sort"
	"strconv"
)

// Category classifies a team.
type Category string

const (
	CategoryMarketing   Category = "Marketing"
	CategorySales       Category = "Sales"
	CategoryDevelopment Category = "Development"
	CategoryDesign      Category = "Design"
)

// Categories lists the accepted categories in display order.
var Categories = []Category{CategoryMarketing, CategorySales, CategoryDevelopment, CategoryDesign}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Answer is one member's reply to one question. Timestamp is Unix milliseconds.
type Answer struct {
	Answer    string `json:"answer"`
	Timestamp int64  `json:"timestamp"`
}

// Member is the per-team copy of a user: name at add time plus answers keyed by question index.
type Member struct {
	Name    string            `json:"name"`
	Answers map[string]Answer `json:"answers,omitempty"`
}

// Team is a roster with an ordered questionnaire.
type Team struct {
	ID        string            `json:"id,omitempty"`
	Name      string            `json:"name"`
	Author    string            `json:"author"`
	Category  Category          `json:"category"`
	Members   map[string]Member `json:"members"`
	Questions []string          `json:"questions"`
}

// TeamsPath is the collection path all teams live under.
const TeamsPath = "teams"

// TeamPath is the document path of a team.
func TeamPath(id string) string {
	return TeamsPath + "/" + id
}

// MemberPath is the document path of one member entry.
func MemberPath(teamID, userID string) string {
	return TeamPath(teamID) + "/members/" + userID
}

// AnswerPath is the document path of one answer.
func AnswerPath(teamID, userID string, questionIndex int) string {
	return MemberPath(teamID, userID) + "/answers/" + AnswerKey(questionIndex)
}

// AnswerKey renders a question index as the answers map key.
func AnswerKey(questionIndex int) string {
	return strconv.Itoa(questionIndex)
}

// HasMember reports whether userID has a member entry.
func (t Team) HasMember(userID string) bool {
	_, ok := t.Members[userID]
	return ok
}

// MemberIDs returns member ids in lexical order.
func (t Team) MemberIDs() []string {
	ids := make([]string, 0, len(t.Members))
	for id := range t.Members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Normalize returns a deep copy with nil collections filled.
func (t Team) Normalize() Team {
	members := make(map[string]Member, len(t.Members))
	for id, m := range t.Members {
		answers := make(map[string]Answer, len(m.Answers))
		for key, a := range m.Answers {
			answers[key] = a
		}
		m.Answers = answers
		members[id] = m
	}
	t.Members = members
	t.Questions = append([]string{}, t.Questions...)
	return t
}

// Document returns the team as stored in the document tree (the id is the key).
func (t Team) Document() map[string]any {
	members := make(map[string]any, len(t.Members))
	for id, m := range t.Members {
		members[id] = m.Document()
	}
	questions := make([]any, 0, len(t.Questions))
	for _, q := range t.Questions {
		questions = append(questions, q)
	}
	return map[string]any{
		"name":      t.Name,
		"author":    t.Author,
		"category":  string(t.Category),
		"members":   members,
		"questions": questions,
	}
}

// Document returns the member as stored in the document tree.
func (m Member) Document() map[string]any {
	answers := make(map[string]any, len(m.Answers))
	for key, a := range m.Answers {
		answers[key] = a.Document()
	}
	return map[string]any{
		"name":    m.Name,
		"answers": answers,
	}
}

// Document returns the answer as stored in the document tree.
func (a Answer) Document() map[string]any {
	return map[string]any{
		"answer":    a.Answer,
		"timestamp": a.Timestamp,
	}
}
