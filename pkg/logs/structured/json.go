package structured

import (
	"fmt"

	"github.com/valyala/fastjson"

	"github.com/modoterra/wharf/pkg/logs/highlight"
)

var parsers fastjson.ParserPool

// jsonAttempts bounds how many balanced candidates are validated per line,
// so text full of stray braces stays cheap.
const jsonAttempts = 6

func detectJSON(text string) (Block, bool) {
	attempts := 0
	for i := 0; i < len(text) && attempts < jsonAttempts; i++ {
		c := text[i]
		if c != '{' && c != '[' {
			continue
		}
		attempts++
		end := balancedJSON(text, i)
		if end < 0 {
			continue
		}
		if end-i >= 2 && fastjson.Validate(text[i:end]) == nil {
			return Block{Kind: JSON, Start: i, End: end}, true
		}
	}
	return Block{}, false
}

// balancedJSON returns the byte offset just past the bracket that closes the
// opener at start, or -1. It is string- and escape-aware but does not parse;
// candidates still go through fastjson.Validate.
func balancedJSON(text string, start int) int {
	depth := 0
	inStr := false
	esc := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inStr {
			switch {
			case esc:
				esc = false
			case c == '\\':
				esc = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}

// FormatJSON pretty-prints a JSON payload into indented rows, preserving
// key order.
func FormatJSON(payload string) ([]StyledLine, error) {
	p := parsers.Get()
	defer parsers.Put(p)
	v, err := p.Parse(payload)
	if err != nil {
		return nil, fmt.Errorf("parsing json block: %w", err)
	}
	w := &writer{}
	jsonValue(w, v, 0)
	return w.done(), nil
}

func jsonValue(w *writer, v *fastjson.Value, indent int) {
	switch v.Type() {
	case fastjson.TypeObject:
		o, err := v.Object()
		if err != nil || o.Len() == 0 {
			w.add("{}", highlight.CatPunct)
			return
		}
		w.add("{", highlight.CatPunct)
		i, n := 0, o.Len()
		o.Visit(func(key []byte, item *fastjson.Value) {
			w.newline(indent + 1)
			w.add(quoteJSON(string(key)), highlight.CatJSONKey)
			w.add(": ", highlight.CatPunct)
			jsonValue(w, item, indent+1)
			if i < n-1 {
				w.add(",", highlight.CatPunct)
			}
			i++
		})
		w.newline(indent)
		w.add("}", highlight.CatPunct)
	case fastjson.TypeArray:
		items, err := v.Array()
		if err != nil || len(items) == 0 {
			w.add("[]", highlight.CatPunct)
			return
		}
		w.add("[", highlight.CatPunct)
		for i, item := range items {
			w.newline(indent + 1)
			jsonValue(w, item, indent+1)
			if i < len(items)-1 {
				w.add(",", highlight.CatPunct)
			}
		}
		w.newline(indent)
		w.add("]", highlight.CatPunct)
	case fastjson.TypeString:
		w.add(string(v.MarshalTo(nil)), highlight.CatJSONString)
	case fastjson.TypeNumber:
		w.add(string(v.MarshalTo(nil)), highlight.CatJSONNumber)
	case fastjson.TypeTrue, fastjson.TypeFalse:
		w.add(string(v.MarshalTo(nil)), highlight.CatJSONBool)
	case fastjson.TypeNull:
		w.add("null", highlight.CatJSONNull)
	}
}

func quoteJSON(key string) string {
	var a fastjson.Arena
	return string(a.NewString(key).MarshalTo(nil))
}
