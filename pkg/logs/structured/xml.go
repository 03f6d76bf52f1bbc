package structured

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/modoterra/wharf/pkg/logs/highlight"
)

func detectXML(text string) (Block, bool) {
	var stack []string
	start := -1
	i := 0
	for i < len(text) {
		lt := strings.IndexByte(text[i:], '<')
		if lt < 0 {
			break
		}
		i += lt
		rest := text[i:]
		switch {
		case strings.HasPrefix(rest, "</"):
			gt := strings.IndexByte(rest, '>')
			if gt < 0 {
				return Block{}, false
			}
			name := strings.TrimSpace(rest[2:gt])
			if len(stack) > 0 && stack[len(stack)-1] == name {
				stack = stack[:len(stack)-1]
				if len(stack) == 0 && start >= 0 {
					return Block{Kind: XML, Start: start, End: i + gt + 1}, true
				}
			} else {
				// Mismatched close, restart detection past it.
				stack = stack[:0]
				start = -1
			}
			i += gt + 1
		case strings.HasPrefix(rest, "<!--"):
			end := strings.Index(rest, "-->")
			if end < 0 {
				return Block{}, false
			}
			i += end + 3
		case strings.HasPrefix(rest, "<?"):
			end := strings.Index(rest, "?>")
			if end < 0 {
				return Block{}, false
			}
			if start < 0 {
				start = i
			}
			i += end + 2
		case strings.HasPrefix(rest, "<!"):
			gt := strings.IndexByte(rest, '>')
			if gt < 0 {
				return Block{}, false
			}
			i += gt + 1
		case len(rest) > 1 && isNameStart(rest[1]):
			gt := strings.IndexByte(rest, '>')
			if gt < 0 {
				return Block{}, false
			}
			tag := rest[1:gt]
			selfClosing := strings.HasSuffix(tag, "/")
			if selfClosing {
				tag = tag[:len(tag)-1]
			}
			name := tag
			if sp := strings.IndexAny(name, " \t"); sp >= 0 {
				name = name[:sp]
			}
			if start < 0 {
				start = i
			}
			if selfClosing {
				if len(stack) == 0 {
					return Block{Kind: XML, Start: start, End: i + gt + 1}, true
				}
			} else {
				stack = append(stack, name)
			}
			i += gt + 1
		default:
			i++
		}
	}
	return Block{}, false
}

func isNameStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

// FormatXML pretty-prints an XML payload into indented rows, one element
// boundary per row.
func FormatXML(payload string) ([]StyledLine, error) {
	dec := xml.NewDecoder(strings.NewReader(payload))
	dec.Strict = false
	w := &writer{}
	depth := 0
	for {
		tok, err := dec.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing xml block: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			w.newline(depth)
			w.add("<", highlight.CatPunct)
			w.add(xmlName(t.Name), highlight.CatJSONKey)
			for _, a := range t.Attr {
				w.add(" ", highlight.CatNone)
				w.add(xmlName(a.Name), highlight.CatKey)
				w.add("=", highlight.CatPunct)
				w.add(`"`+a.Value+`"`, highlight.CatJSONString)
			}
			w.add(">", highlight.CatPunct)
			depth++
		case xml.EndElement:
			depth--
			w.newline(depth)
			w.add("</", highlight.CatPunct)
			w.add(xmlName(t.Name), highlight.CatJSONKey)
			w.add(">", highlight.CatPunct)
		case xml.CharData:
			s := strings.TrimSpace(string(t))
			if s != "" {
				w.newline(depth)
				w.add(s, highlight.CatJSONString)
			}
		case xml.Comment:
			w.newline(depth)
			w.add("<!--"+string(t)+"-->", highlight.CatPunct)
		case xml.ProcInst:
			w.newline(depth)
			w.add("<?"+t.Target+" "+strings.TrimSpace(string(t.Inst))+"?>", highlight.CatPunct)
		case xml.Directive:
			w.newline(depth)
			w.add("<!"+string(t)+">", highlight.CatPunct)
		}
	}
	return w.done(), nil
}

// xmlName reassembles a possibly prefixed tag name. RawToken keeps the
// prefix in Space without resolving it.
func xmlName(n xml.Name) string {
	if n.Space != "" {
		return n.Space + ":" + n.Local
	}
	return n.Local
}
