// Package snippet contains the data structures that describe snippets in a repository
package snippet

import (
	"strings"
	"time"
)

const (
	// DefaultFolder is used when a snippet is created without a folder
	DefaultFolder = "Default"
	// PlainText language matches every completion request
	PlainText = "plaintext"
	// CopySuffix is appended to the name of duplicated snippets
	CopySuffix = " (Copy)"
)

// Snippet a named, reusable block of text
type Snippet struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description" yaml:"description"`
	Body        []string  `json:"body" yaml:"body"`
	Language    string    `json:"language" yaml:"language"`
	Tags        []string  `json:"tags" yaml:"tags"`
	Folder      string    `json:"folder" yaml:"folder"`
	Created     time.Time `json:"created" yaml:"created"`
	Modified    time.Time `json:"modified" yaml:"modified"`
}

// Input fields a caller may set when creating a snippet
type Input struct {
	Name        string   `json:"name" yaml:"name" validate:"required,max=256"`
	Description string   `json:"description" yaml:"description"`
	Body        []string `json:"body" yaml:"body"`
	Language    string   `json:"language" yaml:"language" validate:"max=64"`
	Tags        []string `json:"tags" yaml:"tags"`
	Folder      string   `json:"folder" yaml:"folder" validate:"max=256"`
}

// Patch partial update, nil fields stay untouched
type Patch struct {
	Name        *string   `json:"name,omitempty" validate:"omitempty,max=256"`
	Description *string   `json:"description,omitempty"`
	Body        *[]string `json:"body,omitempty"`
	Language    *string   `json:"language,omitempty" validate:"omitempty,max=64"`
	Tags        *[]string `json:"tags,omitempty"`
	Folder      *string   `json:"folder,omitempty" validate:"omitempty,max=256"`
}

// Folder groups snippets by their folder label
type Folder struct {
	Name     string    `json:"name"`
	Snippets []Snippet `json:"snippets"`
}

// ------------------------------------------------------------------------------------------------
// ~ Public methods
// ------------------------------------------------------------------------------------------------

// Normalize trims the name and fills in defaults
func (in Input) Normalize() Input {
	in.Name = strings.TrimSpace(in.Name)
	if in.Folder == "" {
		in.Folder = DefaultFolder
	}
	if in.Body == nil {
		in.Body = []string{}
	}
	if in.Tags == nil {
		in.Tags = []string{}
	}
	return in
}

// Input returns the user editable fields of s
func (s Snippet) Input() Input {
	return Input{
		Name:        s.Name,
		Description: s.Description,
		Body:        cloneStrings(s.Body),
		Language:    s.Language,
		Tags:        cloneStrings(s.Tags),
		Folder:      s.Folder,
	}
}

// Clone returns a deep copy
func (s Snippet) Clone() Snippet {
	s.Body = cloneStrings(s.Body)
	s.Tags = cloneStrings(s.Tags)
	return s
}

// Apply merges p over s. Timestamps are left to the caller.
func (s Snippet) Apply(p Patch) Snippet {
	s = s.Clone()
	if p.Name != nil {
		s.Name = strings.TrimSpace(*p.Name)
	}
	if p.Description != nil {
		s.Description = *p.Description
	}
	if p.Body != nil {
		s.Body = cloneStrings(*p.Body)
	}
	if p.Language != nil {
		s.Language = *p.Language
	}
	if p.Tags != nil {
		s.Tags = cloneStrings(*p.Tags)
	}
	if p.Folder != nil {
		s.Folder = *p.Folder
	}
	return s
}

// Matches reports whether the lower cased query is contained in name,
// description or one of the tags. The empty query matches everything.
func (s Snippet) Matches(lowerQuery string) bool {
	if strings.Contains(strings.ToLower(s.Name), lowerQuery) ||
		strings.Contains(strings.ToLower(s.Description), lowerQuery) {
		return true
	}
	for _, tag := range s.Tags {
		if strings.Contains(strings.ToLower(tag), lowerQuery) {
			return true
		}
	}
	return false
}

// IsForLanguage is true for snippets of the given language and plain text ones
func (s Snippet) IsForLanguage(language string) bool {
	return s.Language == language || s.Language == PlainText
}

// Text joins the body lines
func (s Snippet) Text() string {
	return strings.Join(s.Body, "\n")
}

func cloneStrings(v []string) []string {
	if v == nil {
		return nil
	}
	return append(make([]string, 0, len(v)), v...)
}
