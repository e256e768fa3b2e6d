package variables

import (
	"strconv"
	"strings"
	"unicode"
)

// Tokens возвращает токены %...% в порядке появления.
//
// Тело токена не может быть пустым и не может содержать пробелов:
// в строке "50% of %x%" найден будет только %x%.
func Tokens(text string) []string {
	var tokens []string
	i := strings.IndexByte(text, '%')
	for i >= 0 && i < len(text) {
		j := strings.IndexByte(text[i+1:], '%')
		if j < 0 {
			break
		}
		j += i + 1
		body := text[i+1 : j]
		if body != "" && !strings.ContainsFunc(body, unicode.IsSpace) {
			tokens = append(tokens, text[i:j+1])
			next := strings.IndexByte(text[j+1:], '%')
			if next < 0 {
				break
			}
			i = j + 1 + next
			continue
		}
		i = j
	}
	return tokens
}

// Segment — шаг пути внутри значения: поле или индекс.
type Segment struct {
	Field   string
	Index   int
	IsIndex bool
}

// Ref — разобранный токен.
type Ref struct {
	// Name — базовое имя без процентов (x для %x.a[1]%).
	Name string
	Path []Segment
}

// Key возвращает ключ базовой переменной (%x%).
func (r Ref) Key() string {
	return Key(r.Name)
}

// ParseRef разбирает токен %x.a[1].b% на имя и путь.
func ParseRef(token string) Ref {
	body := strings.TrimSuffix(strings.TrimPrefix(token, "%"), "%")

	end := strings.IndexAny(body, ".[")
	if end < 0 {
		return Ref{Name: body}
	}

	ref := Ref{Name: body[:end]}
	rest := body[end:]
	for rest != "" {
		switch rest[0] {
		case '.':
			rest = rest[1:]
			n := strings.IndexAny(rest, ".[")
			if n < 0 {
				n = len(rest)
			}
			if rest[:n] != "" {
				ref.Path = append(ref.Path, Segment{Field: rest[:n]})
			}
			rest = rest[n:]
		case '[':
			n := strings.IndexByte(rest, ']')
			if n < 0 {
				ref.Path = append(ref.Path, Segment{Field: rest[1:]})
				return ref
			}
			inner := strings.Trim(rest[1:n], `'"`)
			if idx, err := strconv.Atoi(inner); err == nil {
				ref.Path = append(ref.Path, Segment{Index: idx, IsIndex: true})
			} else {
				ref.Path = append(ref.Path, Segment{Field: inner})
			}
			rest = rest[n+1:]
		default:
			n := strings.IndexAny(rest, ".[")
			if n < 0 {
				n = len(rest)
			}
			ref.Path = append(ref.Path, Segment{Field: rest[:n]})
			rest = rest[n:]
		}
	}
	return ref
}
