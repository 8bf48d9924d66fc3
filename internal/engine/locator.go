// internal/engine/locator.go
package engine

import (
	"fmt"
	"strings"

	json "github.com/json-iterator/go"
)

// By names the lookup mechanism a Locator uses.
type By string

const (
	ByCSS         By = "css"
	ByXPath       By = "xpath"
	ByRole        By = "role"
	ByLabel       By = "label"
	ByPlaceholder By = "placeholder"
	ByText        By = "text"
)

// Locator is a lazy description of zero or more nodes in the remote document.
// It holds no reference to any node; every Driver call re-evaluates it against
// the live document, so a Locator stays valid across re-renders.
//
// Locators are immutable values. Builder methods return modified copies.
type Locator struct {
	by           By
	query        string
	name         string
	exact        bool
	hasText      string
	hasTextExact bool
	filtered     bool
	nth          int
	parent       *Locator
}

func newLocator(by By, query string) Locator {
	return Locator{by: by, query: query, nth: -1}
}

// CSS matches nodes by CSS selector.
func CSS(selector string) Locator { return newLocator(ByCSS, selector) }

// XPath matches nodes by XPath expression. When scoped under a parent with
// Locate, the expression should be relative (start with ".").
func XPath(expr string) Locator { return newLocator(ByXPath, expr) }

// Role matches nodes by explicit or implicit ARIA role. An empty name matches
// any node with the role; otherwise the accessible name must match.
func Role(role, name string, exact bool) Locator {
	l := newLocator(ByRole, role)
	l.name = name
	l.exact = exact
	return l
}

// Label matches form controls whose associated label (label[for], a wrapping
// label, aria-labelledby or aria-label) matches text.
func Label(text string, exact bool) Locator {
	l := newLocator(ByLabel, text)
	l.exact = exact
	return l
}

// Placeholder matches controls by their placeholder attribute.
func Placeholder(text string, exact bool) Locator {
	l := newLocator(ByPlaceholder, text)
	l.exact = exact
	return l
}

// Text matches the innermost nodes whose text content matches.
func Text(text string, exact bool) Locator {
	l := newLocator(ByText, text)
	l.exact = exact
	return l
}

// Locate scopes child to the nodes matched by l.
func (l Locator) Locate(child Locator) Locator {
	parent := l
	child.parent = &parent
	return child
}

// HasText narrows the matches to nodes whose normalized text equals (exact)
// or contains (case-insensitive) text.
func (l Locator) HasText(text string, exact bool) Locator {
	l.hasText = text
	l.hasTextExact = exact
	l.filtered = true
	return l
}

// Nth narrows the matches to the i-th (zero based) one.
func (l Locator) Nth(i int) Locator {
	if i < 0 {
		i = 0
	}
	l.nth = i
	return l
}

// First is Nth(0).
func (l Locator) First() Locator { return l.Nth(0) }

// All drops any index restriction.
func (l Locator) All() Locator {
	l.nth = -1
	return l
}

func (l Locator) Kind() By      { return l.by }
func (l Locator) Query() string { return l.query }
func (l Locator) Name() string  { return l.name }
func (l Locator) IsExact() bool { return l.exact }
func (l Locator) IsZero() bool  { return l.by == "" }
func (l Locator) Parent() *Locator {
	if l.parent == nil {
		return nil
	}
	p := *l.parent
	return &p
}

// Index reports the index restriction, if any.
func (l Locator) Index() (int, bool) {
	if l.nth < 0 {
		return 0, false
	}
	return l.nth, true
}

// TextFilter reports the HasText filter, if any.
func (l Locator) TextFilter() (text string, exact bool, ok bool) {
	return l.hasText, l.hasTextExact, l.filtered
}

// String renders the locator in a stable, readable form. It doubles as an
// identity key, so two locators built the same way render identically.
func (l Locator) String() string {
	var b strings.Builder
	if l.parent != nil {
		b.WriteString(l.parent.String())
		b.WriteString(" >> ")
	}
	b.WriteString(string(l.by))
	b.WriteString("=")
	b.WriteString(l.query)
	if l.by == ByRole && l.name != "" {
		fmt.Fprintf(&b, "[name=%q", l.name)
		if l.exact {
			b.WriteString(" exact")
		}
		b.WriteString("]")
	} else if l.exact && l.by != ByCSS && l.by != ByXPath {
		b.WriteString("[exact]")
	}
	if l.filtered {
		if l.hasTextExact {
			fmt.Fprintf(&b, " >> has-text=%q", l.hasText)
		} else {
			fmt.Fprintf(&b, " >> has-text~=%q", l.hasText)
		}
	}
	if l.nth >= 0 {
		fmt.Fprintf(&b, " >> nth=%d", l.nth)
	}
	return b.String()
}

// locatorSpec is the wire form consumed by the in-page resolver.
type locatorSpec struct {
	By           By           `json:"by"`
	Query        string       `json:"query"`
	Name         string       `json:"name,omitempty"`
	Exact        bool         `json:"exact"`
	HasText      *string      `json:"hasText,omitempty"`
	HasTextExact bool         `json:"hasTextExact"`
	Nth          int          `json:"nth"`
	Parent       *locatorSpec `json:"parent,omitempty"`
}

func (l Locator) spec() *locatorSpec {
	s := &locatorSpec{
		By:           l.by,
		Query:        l.query,
		Name:         l.name,
		Exact:        l.exact,
		HasTextExact: l.hasTextExact,
		Nth:          l.nth,
	}
	if l.filtered {
		text := l.hasText
		s.HasText = &text
	}
	if l.parent != nil {
		s.Parent = l.parent.spec()
	}
	return s
}

// MarshalJSON encodes the locator for evaluation inside the page.
func (l Locator) MarshalJSON() ([]byte, error) {
	if l.IsZero() {
		return nil, fmt.Errorf("cannot encode an empty locator")
	}
	return json.Marshal(l.spec())
}

// xpathLiteral quotes s as an XPath 1.0 string literal. XPath has no escape
// sequences, so strings holding both quote kinds are built with concat().
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		if p != "" {
			quoted = append(quoted, "'"+p+"'")
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}
