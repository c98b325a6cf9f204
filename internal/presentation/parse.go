package presentation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"hypcert/internal/freegroup"
)

var (
	tokenPattern = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)(?:\^(-?[0-9]+))?$`)
	namePattern  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Parse reads a presentation from text. Accepted forms:
//
//	<a, b | aabb>          explicit generators and relator
//	aabb  abAB  aBc        letter string; upper case is the inverse
//	a^2*b^-1  x1 x2^-1     tokens separated by '*' or spaces
//	[1, 1, 2, -1]  1 2 -1  integer letters, +i generator i, -i its inverse
//
// generators, when non-nil, names the generators for the bare forms; without
// it they are inferred (a, b, c, ... for letters and integers, first
// appearance for tokens). The relator is freely and cyclically reduced, and
// a proper power is accepted and flagged.
func Parse(input string, generators []string) (*Presentation, error) {
	text := strings.TrimSpace(input)
	if text == "" {
		return nil, ErrEmptyRelator
	}

	if strings.HasPrefix(text, "<") {
		if !strings.HasSuffix(text, ">") {
			return nil, fmt.Errorf("%w: missing closing '>'", ErrSyntax)
		}
		body := text[1 : len(text)-1]
		left, right, ok := strings.Cut(body, "|")
		if !ok {
			return nil, fmt.Errorf("%w: missing '|' between generators and relator", ErrSyntax)
		}
		generators = nil
		for _, g := range strings.Split(left, ",") {
			g = strings.TrimSpace(g)
			if g == "" {
				continue
			}
			if !namePattern.MatchString(g) {
				return nil, fmt.Errorf("%w: invalid generator name %q", ErrSyntax, g)
			}
			generators = append(generators, g)
		}
		if len(generators) == 0 {
			return nil, ErrNoGenerators
		}
		text = strings.TrimSpace(right)
		if text == "" {
			return nil, ErrEmptyRelator
		}
	}

	var (
		word freegroup.Word
		err  error
	)
	switch {
	case isIntegerList(text):
		word, generators, err = parseIntegers(text, generators)
	case strings.ContainsAny(text, "*^ \t"):
		word, generators, err = parseTokens(text, generators)
	default:
		word, generators, err = parseLetters(text, generators)
	}
	if err != nil {
		return nil, err
	}

	word = freegroup.CyclicReduce(word)
	if len(word) == 0 {
		return nil, fmt.Errorf("%w: %q reduces to the identity", ErrEmptyRelator, input)
	}
	return New(generators, word, AllowProperPower())
}

// MustParse is like Parse but panics on error.
func MustParse(input string, generators []string) *Presentation {
	p, err := Parse(input, generators)
	if err != nil {
		panic(err)
	}
	return p
}

func isIntegerList(text string) bool {
	text = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(text, "["), "]"))
	if text == "" {
		return false
	}
	for _, r := range text {
		if !unicode.IsDigit(r) && r != '-' && r != '+' && r != ',' && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

func parseIntegers(text string, generators []string) (freegroup.Word, []string, error) {
	text = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(text, "["), "]"))
	fields := strings.FieldsFunc(text, func(r rune) bool { return r == ',' || unicode.IsSpace(r) })
	word := make(freegroup.Word, 0, len(fields))
	rank := 0
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: invalid letter %q", ErrSyntax, f)
		}
		if n == 0 {
			return nil, nil, fmt.Errorf("%w: letter 0", ErrUnknownGenerator)
		}
		l := freegroup.Letter(n)
		if l.Generator() > rank {
			rank = l.Generator()
		}
		word = append(word, l)
	}
	if generators == nil {
		generators = DefaultGenerators(rank)
	}
	return word, generators, nil
}

func parseLetters(text string, generators []string) (freegroup.Word, []string, error) {
	if generators == nil {
		word, err := freegroup.ParseLetters(text)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrSyntax, err)
		}
		return word, DefaultGenerators(word.Rank()), nil
	}
	index := make(map[string]int, len(generators))
	for i, g := range generators {
		index[g] = i + 1
	}
	word := make(freegroup.Word, 0, len(text))
	for _, r := range text {
		s := string(r)
		if i, ok := index[s]; ok {
			word = append(word, freegroup.Letter(i))
			continue
		}
		if i, ok := index[strings.ToLower(s)]; ok && unicode.IsUpper(r) {
			word = append(word, freegroup.Letter(-i))
			continue
		}
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownGenerator, s)
	}
	return word, generators, nil
}

func parseTokens(text string, generators []string) (freegroup.Word, []string, error) {
	fields := strings.FieldsFunc(text, func(r rune) bool { return r == '*' || unicode.IsSpace(r) })
	infer := generators == nil
	index := make(map[string]int, len(generators))
	for i, g := range generators {
		index[g] = i + 1
	}

	var word freegroup.Word
	for _, f := range fields {
		m := tokenPattern.FindStringSubmatch(f)
		if m == nil {
			return nil, nil, fmt.Errorf("%w: invalid token %q", ErrSyntax, f)
		}
		name, exp := m[1], 1
		if m[2] != "" {
			n, err := strconv.Atoi(m[2])
			if err != nil {
				return nil, nil, fmt.Errorf("%w: invalid exponent in %q", ErrSyntax, f)
			}
			exp = n
		}

		gen, ok := index[name]
		switch {
		case ok:
		case len(name) == 1 && unicode.IsUpper(rune(name[0])) && index[strings.ToLower(name)] > 0:
			gen = index[strings.ToLower(name)]
			exp = -exp
		case infer:
			generators = append(generators, name)
			gen = len(generators)
			index[name] = gen
		default:
			return nil, nil, fmt.Errorf("%w: %q", ErrUnknownGenerator, name)
		}

		l := freegroup.Letter(gen)
		if exp < 0 {
			l, exp = l.Inverse(), -exp
		}
		for i := 0; i < exp; i++ {
			word = append(word, l)
		}
	}
	return word, generators, nil
}

// DefaultGenerators returns a, b, c, ... for rank up to 26 and x1..xn beyond.
func DefaultGenerators(rank int) []string {
	out := make([]string, rank)
	for i := range out {
		if rank <= 26 {
			out[i] = string(rune('a' + i))
		} else {
			out[i] = "x" + strconv.Itoa(i+1)
		}
	}
	return out
}
