// internal/engine/strategies.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ControlKind selects which kind of control ResolveControl looks for.
type ControlKind int

const (
	KindTextInput ControlKind = iota
	KindDropdown
	KindRadioGroup
	KindCheckbox
)

func (k ControlKind) String() string {
	switch k {
	case KindTextInput:
		return "text input"
	case KindDropdown:
		return "dropdown"
	case KindRadioGroup:
		return "radio group"
	case KindCheckbox:
		return "checkbox"
	default:
		return fmt.Sprintf("ControlKind(%d)", int(k))
	}
}

// ariaRole is the role a control of this kind exposes.
func (k ControlKind) ariaRole() string {
	switch k {
	case KindDropdown:
		return "combobox"
	case KindRadioGroup:
		return "radiogroup"
	case KindCheckbox:
		return "checkbox"
	default:
		return "textbox"
	}
}

// xpathTest is an XPath predicate body matching a control of this kind.
func (k ControlKind) xpathTest() string {
	switch k {
	case KindDropdown:
		return "self::select or @role='combobox' or @role='listbox'"
	case KindRadioGroup:
		return "@role='radiogroup' or .//input[@type='radio']"
	case KindCheckbox:
		return "self::input[@type='checkbox'] or @role='checkbox'"
	default:
		return textInputTest
	}
}

// cssSelector matches a control of this kind below a container.
func (k ControlKind) cssSelector() string {
	switch k {
	case KindDropdown:
		return "select, [role='combobox'], [role='listbox']"
	case KindRadioGroup:
		return "[role='radiogroup'], input[type='radio']"
	case KindCheckbox:
		return "input[type='checkbox'], [role='checkbox']"
	default:
		return "input:not([type]), input[type='text'], input[type='email'], input[type='tel'], input[type='number'], " +
			"input[type='password'], input[type='search'], input[type='url'], textarea"
	}
}

const textInputTest = "self::textarea or self::input[not(@type) or @type='text' or @type='email' or @type='tel' " +
	"or @type='number' or @type='password' or @type='search' or @type='url' or @type='date']"

const formFieldTest = "self::input[not(@type='hidden') and not(@type='submit') and not(@type='button')] or self::textarea or self::select"

// LabelStrategies is the declared lookup order for "the input labeled X":
// exact accessible name, loose accessible name, the first field following a
// node carrying the caption, name/id attributes derived from the caption, and
// finally the placeholder.
func LabelStrategies(label string) []Strategy {
	caption := xpathLiteral(normalize(label))
	return []Strategy{
		Fixed("accessible-name-exact", Label(label, true)),
		Fixed("accessible-name-loose", Label(label, false)),
		Fixed("sibling-structure", XPath(fmt.Sprintf(
			"//*[not(self::script) and not(self::style) and not(self::option)][normalize-space(text())=%s]"+
				"/following::*[%s][1]", caption, formFieldTest))),
		{Name: "attribute-pattern", Locate: func(context.Context) (Locator, error) { return attributePattern(label) }},
		Fixed("placeholder", Placeholder(label, false)),
	}
}

// ControlStrategies is the declared lookup order for "the <kind> under the
// heading H": ARIA role with accessible name, fieldset legend, the first
// matching control after the heading text, and aria-labelledby pointing at the
// heading.
func ControlStrategies(heading string, kind ControlKind) []Strategy {
	caption := xpathLiteral(normalize(heading))

	legend := XPath(fmt.Sprintf("//fieldset[legend[normalize-space()=%s]]", caption))
	if kind != KindRadioGroup {
		legend = legend.Locate(CSS(kind.cssSelector()))
	}

	return []Strategy{
		Fixed("aria-role", Role(kind.ariaRole(), heading, true)),
		Fixed("fieldset-legend", legend),
		Fixed("heading-following", XPath(fmt.Sprintf(
			"//*[not(self::script) and not(self::style) and not(self::option)][normalize-space(text())=%s]"+
				"/following::*[%s][1]", caption, kind.xpathTest()))),
		Fixed("labelledby", XPath(fmt.Sprintf(
			"//*[@aria-labelledby = //*[normalize-space(text())=%s]/@id][%s]", caption, kind.xpathTest()))),
	}
}

var errEmptySlug = errors.New("caption has no usable characters for an attribute pattern")

// attributePattern builds a CSS selector matching fields whose name or id
// contains a slug derived from the caption, e.g. "First name" matches
// name="firstName", id="first_name" or id="first-name".
func attributePattern(label string) (Locator, error) {
	words := strings.FieldsFunc(strings.ToLower(label), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		return Locator{}, errEmptySlug
	}
	variants := []string{strings.Join(words, "")}
	if len(words) > 1 {
		variants = append(variants, strings.Join(words, "_"), strings.Join(words, "-"))
	}

	var selectors []string
	for _, tag := range []string{"input:not([type='hidden'])", "textarea", "select"} {
		for _, attr := range []string{"name", "id"} {
			for _, v := range variants {
				selectors = append(selectors, fmt.Sprintf("%s[%s*=%q i]", tag, attr, v))
			}
		}
	}
	return CSS(strings.Join(selectors, ", ")), nil
}
