package classifier

import (
	"strings"
	"unicode/utf8"

	"binlog-router/internal/model"
)

const truncatePrefix = "TRUNCATE"

var stripTableNameChars = strings.NewReplacer(";", "", "`", "")

// Truncate inspects a statement packet. ok is false for anything that is not a truncate,
// which is not an error.
//
// Matching is a literal prefix check without a word boundary, so "TRUNCATEX..." is
// treated as a truncate of whatever follows the ninth character.
func (c *Classifier) Truncate(pkt *model.QueryPacket) (change model.Change, ok bool, err error) {
	if pkt == nil {
		return model.Change{}, false, model.NewError(model.MalformedPacket, "no packet data", nil)
	}
	if pkt.Data == nil {
		return model.Change{}, false, model.NewError(model.MalformedPacket, "no packet data", pkt)
	}
	if pkt.Data.Query == "" {
		return model.Change{}, false, model.NewError(model.MalformedPacket, "no query", pkt)
	}
	if !strings.HasPrefix(pkt.Data.Query, truncatePrefix) {
		return model.Change{}, false, nil
	}
	return model.Change{
		Schema:    pkt.Data.Schema,
		Table:     TruncateTarget(pkt.Data.Query),
		Operation: model.OperationTruncate,
	}, true, nil
}

// TruncateTarget extracts the table name from a statement already known to start with
// TRUNCATE. Schema qualification is kept as written, minus backticks.
func TruncateTarget(query string) string {
	q := dropRunes(query, len(truncatePrefix)+1)
	if strings.HasPrefix(q, "TABLE") {
		q = dropRunes(q, len("TABLE")+1)
	}
	q = stripTableNameChars.Replace(q)
	return strings.TrimSpace(q)
}

// dropRunes removes the first n characters of s, or all of s when it is shorter.
func dropRunes(s string, n int) string {
	for i := 0; i < n && s != ""; i++ {
		_, size := utf8.DecodeRuneInString(s)
		s = s[size:]
	}
	return s
}
