// Package htmlutil flattens markup out of metadata fields. EPUB
// descriptions and ComicInfo summaries frequently arrive as HTML
// fragments, while the store keeps plain text.
package htmlutil

import (
	"regexp"
	"strings"
)

// tagPattern matches any remaining HTML tag, self-closing included.
var tagPattern = regexp.MustCompile(`<[^>]*>`)

// runsOfSpace matches two or more consecutive whitespace characters.
var runsOfSpace = regexp.MustCompile(`\s{2,}`)

// blockCloseTags are replaced with newlines before tag stripping so
// paragraph structure survives as line breaks.
var blockCloseTags = []string{
	"</p>", "</div>", "<br>", "<br/>", "<br />", "</li>",
	"</h1>", "</h2>", "</h3>", "</h4>", "</h5>", "</h6>",
}

// StripTags removes HTML tags from a string, decodes common entities, and
// normalizes whitespace. Block-level closers become newlines; runs of
// spaces collapse; blank lines are dropped.
func StripTags(html string) string {
	if html == "" {
		return ""
	}

	result := html
	for _, tag := range blockCloseTags {
		result = strings.ReplaceAll(result, tag, "\n")
		result = strings.ReplaceAll(result, strings.ToUpper(tag), "\n")
	}

	result = tagPattern.ReplaceAllString(result, "")
	result = decodeHTMLEntities(result)

	lines := strings.Split(result, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(runsOfSpace.ReplaceAllString(line, " "))
		if line != "" {
			kept = append(kept, line)
		}
	}

	return strings.Join(kept, "\n")
}

// entityReplacer covers the named and numeric entities that actually show
// up in ComicInfo/OPF description fields. A single Replacer pass means
// text produced by one replacement is never re-decoded (so "&amp;lt;"
// yields "&lt;", not "<").
var entityReplacer = strings.NewReplacer(
	"&nbsp;", " ", "&#160;", " ",
	"&amp;", "&", "&#38;", "&",
	"&lt;", "<", "&#60;", "<",
	"&gt;", ">", "&#62;", ">",
	"&quot;", "\"", "&#34;", "\"",
	"&apos;", "'", "&#39;", "'",
	"&mdash;", "—", "&#8212;", "—",
	"&ndash;", "–", "&#8211;", "–",
	"&hellip;", "…", "&#8230;", "…",
	"&rsquo;", "’", "&#8217;", "’",
	"&lsquo;", "‘", "&#8216;", "‘",
	"&rdquo;", "”", "&#8221;", "”",
	"&ldquo;", "“", "&#8220;", "“",
	"&copy;", "©", "&#169;", "©",
	"&reg;", "®", "&#174;", "®",
	"&trade;", "™", "&#8482;", "™",
)

func decodeHTMLEntities(s string) string {
	return entityReplacer.Replace(s)
}
