package imagepipe

import (
	"bytes"

	"github.com/bep/imagemeta"
)

// rightsTags maps (source, tag-name) → true for the attribution tags the
// record carries.
var rightsTags = map[imagemeta.Source]map[string]bool{
	imagemeta.EXIF: {
		"Artist":    true,
		"Copyright": true,
	},
	imagemeta.IPTC: {
		"Byline":          true,
		"CopyrightNotice": true,
	},
}

// extractRights pulls creator and copyright attribution from EXIF/IPTC
// metadata. Graceful degradation: returns empty strings when the data
// carries no metadata or cannot be parsed.
func extractRights(data []byte) (artist, copyright string) {
	if len(data) == 0 {
		return "", ""
	}

	err := imagemeta.Decode(imagemeta.Options{
		R:       bytes.NewReader(data),
		Sources: imagemeta.EXIF | imagemeta.IPTC,
		ShouldHandleTag: func(ti imagemeta.TagInfo) bool {
			if tags, ok := rightsTags[ti.Source]; ok {
				return tags[ti.Tag]
			}
			return false
		},
		HandleTag: func(ti imagemeta.TagInfo) error {
			s := tagValueString(ti.Value)
			if s == "" {
				return nil
			}
			switch ti.Tag {
			case "Artist", "Byline":
				if artist == "" {
					artist = s
				}
			case "Copyright", "CopyrightNotice":
				if copyright == "" {
					copyright = s
				}
			}
			return nil
		},
	})
	if err != nil {
		return "", ""
	}
	return artist, copyright
}

// tagValueString extracts a string from a tag value, which may arrive as a
// string or a list.
func tagValueString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []string:
		if len(val) > 0 {
			return val[0]
		}
		return ""
	case []any:
		if len(val) > 0 {
			if s, ok := val[0].(string); ok {
				return s
			}
		}
		return ""
	default:
		return ""
	}
}
