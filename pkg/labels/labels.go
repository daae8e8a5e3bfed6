package labels

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownLabel is returned when a label cannot be mapped to an emoji
var ErrUnknownLabel = errors.New("unknown label")

// tweetEvalEmoji holds the TweetEval emoji classes in class index order
var tweetEvalEmoji = [...]string{
	"❤",
	"😍",
	"😂",
	"💕",
	"🔥",
	"😊",
	"😎",
	"✨",
	"💙",
	"😘",
	"📷",
	"🇺🇸",
	"☀",
	"💜",
	"😉",
	"💯",
	"😁",
	"🎄",
	"📸",
	"😜",
}

// Table maps class indices to emoji glyphs. A Table is never modified after
// construction, so it can be shared freely.
type Table struct {
	glyphs []string
}

// TweetEval returns the 20-class TweetEval emoji table
func TweetEval() Table {
	return NewTable(tweetEvalEmoji[:])
}

// NewTable creates a table from glyphs ordered by class index
func NewTable(glyphs []string) Table {
	return Table{glyphs: append([]string(nil), glyphs...)}
}

// Len returns the number of classes in the table
func (t Table) Len() int {
	return len(t.glyphs)
}

// Emoji returns the glyph for a class index
func (t Table) Emoji(class int) (string, error) {
	if class < 0 || class >= len(t.glyphs) {
		return "", fmt.Errorf("%w: class %d out of range [0,%d)", ErrUnknownLabel, class, len(t.glyphs))
	}
	return t.glyphs[class], nil
}

// Lookup parses a model label and returns its class index and glyph
func (t Table) Lookup(label string) (int, string, error) {
	class, err := ParseClass(label)
	if err != nil {
		return 0, "", err
	}
	glyph, err := t.Emoji(class)
	if err != nil {
		return 0, "", err
	}
	return class, glyph, nil
}

// Contains reports whether glyph belongs to the table
func (t Table) Contains(glyph string) bool {
	for _, g := range t.glyphs {
		if g == glyph {
			return true
		}
	}
	return false
}

// Validate checks that the table covers exactly numClasses classes
func (t Table) Validate(numClasses int) error {
	if len(t.glyphs) != numClasses {
		return fmt.Errorf("emoji table has %d entries, model has %d classes", len(t.glyphs), numClasses)
	}
	for i, g := range t.glyphs {
		if g == "" {
			return fmt.Errorf("emoji table entry %d is empty", i)
		}
	}
	return nil
}

// ParseClass extracts the class index from a label such as "LABEL_12".
// The numeric part is taken after the last underscore; a bare number is
// accepted as well.
func ParseClass(label string) (int, error) {
	suffix := label
	if i := strings.LastIndex(label, "_"); i >= 0 {
		suffix = label[i+1:]
	}
	class, err := strconv.Atoi(suffix)
	if err != nil || class < 0 {
		return 0, fmt.Errorf("%w: malformed label %q", ErrUnknownLabel, label)
	}
	return class, nil
}

// ClassLabel returns the generic label name for a class index
func ClassLabel(class int) string {
	return "LABEL_" + strconv.Itoa(class)
}
