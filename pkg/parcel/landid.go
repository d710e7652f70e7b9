package parcel

import (
	"crypto/rand"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultLandIDPrefix is used when no prefix is configured.
const DefaultLandIDPrefix = "NG-LAND"

const (
	base36Alphabet  = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	landIDRandomLen = 4
)

var landIDPattern = regexp.MustCompile(`^[A-Z0-9]+(-[A-Z0-9]+)*-[0-9A-Z]+-[0-9A-Z]{4}$`)

// LandIDGenerator produces human-shareable land identifiers of the form
// PREFIX-<base36 millisecond timestamp>-<4 random base36 characters>.
// The result is not meant to be unguessable; stores still enforce uniqueness.
type LandIDGenerator struct {
	prefix string
	random io.Reader
}

// NewLandIDGenerator creates a generator. An empty prefix selects
// DefaultLandIDPrefix; a nil reader selects crypto/rand.
func NewLandIDGenerator(prefix string, random io.Reader) *LandIDGenerator {
	prefix = strings.ToUpper(strings.Trim(strings.TrimSpace(prefix), "-"))
	if prefix == "" {
		prefix = DefaultLandIDPrefix
	}
	if random == nil {
		random = rand.Reader
	}
	return &LandIDGenerator{prefix: prefix, random: random}
}

// Next returns a land id stamped with now.
func (g *LandIDGenerator) Next(now time.Time) (string, error) {
	buf := make([]byte, landIDRandomLen)
	if _, err := io.ReadFull(g.random, buf); err != nil {
		return "", fmt.Errorf("generate land id: %w", err)
	}
	for i, b := range buf {
		buf[i] = base36Alphabet[int(b)%len(base36Alphabet)]
	}
	ts := strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36))
	return g.prefix + "-" + ts + "-" + string(buf), nil
}

// ValidLandID reports whether s has the shape of a generated land id.
func ValidLandID(s string) bool {
	return landIDPattern.MatchString(s)
}
