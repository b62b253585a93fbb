package telegram

import (
	"unicode/utf16"
	"unicode/utf8"

	"github.com/gotd/td/tg"

	"github.com/sunil55999/Zorox/internal/models"
)

// Telegram entity offsets count UTF-16 code units; our snapshots carry byte
// offsets. Both converters walk the text once building the offset tables.

// entitiesFromTG converts wire entities to byte-offset snapshot entities.
// Unknown entity types are dropped.
func entitiesFromTG(text string, ents []tg.MessageEntityClass) []models.Entity {
	if len(ents) == 0 {
		return nil
	}
	u16ToByte := utf16ToByteTable(text)

	out := make([]models.Entity, 0, len(ents))
	for _, e := range ents {
		var kind string
		attrs := map[string]string{}
		var off, length int

		switch v := e.(type) {
		case *tg.MessageEntityBold:
			kind, off, length = "bold", v.Offset, v.Length
		case *tg.MessageEntityItalic:
			kind, off, length = "italic", v.Offset, v.Length
		case *tg.MessageEntityUnderline:
			kind, off, length = "underline", v.Offset, v.Length
		case *tg.MessageEntityStrike:
			kind, off, length = "strikethrough", v.Offset, v.Length
		case *tg.MessageEntityCode:
			kind, off, length = "code", v.Offset, v.Length
		case *tg.MessageEntityPre:
			kind, off, length = "pre", v.Offset, v.Length
			attrs["language"] = v.Language
		case *tg.MessageEntityURL:
			kind, off, length = "url", v.Offset, v.Length
		case *tg.MessageEntityTextURL:
			kind, off, length = "text_url", v.Offset, v.Length
			attrs["url"] = v.URL
		case *tg.MessageEntitySpoiler:
			kind, off, length = "spoiler", v.Offset, v.Length
		default:
			continue
		}

		if off < 0 || off+length > len(u16ToByte)-1 {
			continue
		}
		ent := models.Entity{
			Start: u16ToByte[off],
			End:   u16ToByte[off+length],
			Kind:  kind,
		}
		if len(attrs) > 0 {
			ent.Attrs = attrs
		}
		out = append(out, ent)
	}
	return out
}

// entitiesToTG converts snapshot entities back to wire entities.
func entitiesToTG(text string, ents []models.Entity) []tg.MessageEntityClass {
	if len(ents) == 0 {
		return nil
	}
	byteToU16 := byteToUTF16Table(text)

	out := make([]tg.MessageEntityClass, 0, len(ents))
	for _, e := range ents {
		if e.Start < 0 || e.End > len(text) || e.Start >= e.End {
			continue
		}
		off := byteToU16[e.Start]
		length := byteToU16[e.End] - off

		switch e.Kind {
		case "bold":
			out = append(out, &tg.MessageEntityBold{Offset: off, Length: length})
		case "italic":
			out = append(out, &tg.MessageEntityItalic{Offset: off, Length: length})
		case "underline":
			out = append(out, &tg.MessageEntityUnderline{Offset: off, Length: length})
		case "strikethrough":
			out = append(out, &tg.MessageEntityStrike{Offset: off, Length: length})
		case "code":
			out = append(out, &tg.MessageEntityCode{Offset: off, Length: length})
		case "pre":
			out = append(out, &tg.MessageEntityPre{Offset: off, Length: length, Language: e.Attrs["language"]})
		case "url":
			out = append(out, &tg.MessageEntityURL{Offset: off, Length: length})
		case "text_url":
			out = append(out, &tg.MessageEntityTextURL{Offset: off, Length: length, URL: e.Attrs["url"]})
		case "spoiler":
			out = append(out, &tg.MessageEntitySpoiler{Offset: off, Length: length})
		}
	}
	return out
}

// utf16ToByteTable maps UTF-16 code-unit index → byte offset, with a final
// entry for the end of the string.
func utf16ToByteTable(s string) []int {
	table := make([]int, 0, len(s)+1)
	for i, r := range s {
		n := len(utf16.Encode([]rune{r}))
		for j := 0; j < n; j++ {
			table = append(table, i)
		}
	}
	table = append(table, len(s))
	return table
}

// byteToUTF16Table maps byte offset → UTF-16 code-unit index. Offsets inside
// a rune map to the rune's start unit.
func byteToUTF16Table(s string) []int {
	table := make([]int, len(s)+1)
	u16 := 0
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		for j := 0; j < size; j++ {
			table[i+j] = u16
		}
		u16 += len(utf16.Encode([]rune{r}))
		i += size
	}
	table[len(s)] = u16
	return table
}
