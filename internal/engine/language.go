package engine

import (
	"strings"

	"golang.org/x/text/language"

	"github.com/roach88/xforms/internal/ir"
)

// languageTag extracts the BCP 47 tag a form language name carries in
// parentheses, as in "English (en)" or "Français (fr-CA)".
func languageTag(name string) (language.Tag, bool) {
	open := strings.LastIndexByte(name, '(')
	if open < 0 || !strings.HasSuffix(name, ")") {
		return language.Und, false
	}
	tag, err := language.Parse(strings.TrimSpace(name[open+1 : len(name)-1]))
	if err != nil {
		return language.Und, false
	}
	return tag, true
}

// initialLanguage picks the language a session starts in: the best match
// for preferred among the form's tagged languages, else the form's default,
// else its first language. Forms without translations start in "".
func initialLanguage(form *ir.FormDef, preferred []string) string {
	if len(form.Languages) == 0 {
		return ""
	}
	if name, ok := matchLanguage(form.LanguageNames(), preferred); ok {
		return name
	}
	if _, ok := form.Language(form.DefaultLanguage); ok {
		return form.DefaultLanguage
	}
	return form.Languages[0].Name
}

func matchLanguage(names, preferred []string) (string, bool) {
	if len(preferred) == 0 {
		return "", false
	}
	var (
		tags   []language.Tag
		tagged []string
	)
	for _, name := range names {
		if tag, ok := languageTag(name); ok {
			tags = append(tags, tag)
			tagged = append(tagged, name)
		}
	}
	if len(tags) == 0 {
		return "", false
	}

	var want []language.Tag
	for _, p := range preferred {
		if tag, err := language.Parse(p); err == nil {
			want = append(want, tag)
		}
	}
	if len(want) == 0 {
		return "", false
	}

	_, index, confidence := language.NewMatcher(tags).Match(want...)
	if confidence == language.No {
		return "", false
	}
	return tagged[index], true
}

// textSource resolves jr:itext ids in a session's active language.
type textSource struct {
	form   *ir.FormDef
	active string
}

func (t *textSource) ResolveText(id string) (string, bool) {
	lang, ok := t.form.Language(t.active)
	if !ok {
		return "", false
	}
	s, ok := lang.Texts[id]
	return s, ok
}
